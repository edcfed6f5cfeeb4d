package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while the caller still owns it, so a
// lease that expired and was re-acquired elsewhere is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lease TTL only while the caller still owns it.
var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// LeaseStore implements ports.WorkerLease using Redis SET NX.
type LeaseStore struct {
	client *goredis.Client
	prefix string
}

// NewLeaseStore creates a new Redis-backed worker lease store.
func NewLeaseStore(client *goredis.Client) *LeaseStore {
	return &LeaseStore{
		client: client,
		prefix: "lease:session:",
	}
}

// Acquire claims the session's worker slot for owner. A lease already held
// by the same owner is extended and counts as acquired, so an instance that
// restarts under a stable owner id reclaims its own leases.
// Returns false if another owner holds an unexpired lease.
func (s *LeaseStore) Acquire(ctx context.Context, sessionID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetArgs(ctx, s.key(sessionID), owner, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Key already exists, possibly ours
			return s.Refresh(ctx, sessionID, owner, ttl)
		}
		return false, fmt.Errorf("redis lease acquire: %w", err)
	}
	return result == "OK", nil
}

// Refresh resets the lease TTL if owner still holds it. It returns false
// when the lease has lapsed or belongs to someone else.
func (s *LeaseStore) Refresh(ctx context.Context, sessionID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, s.client, []string{s.key(sessionID)}, owner, ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("redis lease refresh: %w", err)
	}
	return n == 1, nil
}

// Release drops the lease if owner still holds it.
func (s *LeaseStore) Release(ctx context.Context, sessionID uuid.UUID, owner string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.key(sessionID)}, owner).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis lease release: %w", err)
	}
	return nil
}

func (s *LeaseStore) key(sessionID uuid.UUID) string {
	return s.prefix + sessionID.String()
}
