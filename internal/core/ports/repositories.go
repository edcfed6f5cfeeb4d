package ports

import (
	"context"
	"time"

	"payment-session-reconciler/internal/core/domain"

	"github.com/google/uuid"
)

// SessionRepository is the durable Session Store. It is the single source of
// truth for session status.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.PaymentSession) error
	// Get returns domain.ErrSessionNotFound when no row exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
	// ConditionalSetTerminal applies update only if the stored status still
	// equals update.ExpectedStatus. It returns domain.ErrRaceLost otherwise.
	ConditionalSetTerminal(ctx context.Context, update domain.TerminalUpdate) error
	// ListPendingBefore returns every pending session created at or before now,
	// oldest first. Used by recovery.
	ListPendingBefore(ctx context.Context, now time.Time) ([]domain.PaymentSession, error)
}

// WorkerLease is a cross-instance claim on a session's worker slot.
type WorkerLease interface {
	// Acquire returns false if another owner currently holds the lease.
	Acquire(ctx context.Context, sessionID uuid.UUID, owner string, ttl time.Duration) (bool, error)
	// Refresh extends the lease to ttl if owner still holds it.
	Refresh(ctx context.Context, sessionID uuid.UUID, owner string, ttl time.Duration) (bool, error)
	// Release drops the lease only if owner still holds it.
	Release(ctx context.Context, sessionID uuid.UUID, owner string) error
}
