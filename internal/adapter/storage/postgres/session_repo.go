package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-session-reconciler/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, transaction_id, recipient_address, expected_amount, status,
		transaction_hash, vendor_email, customer_email, created_at, expires_at, updated_at`

// SessionRepo implements ports.SessionRepository.
type SessionRepo struct {
	pool Pool
	now  func() time.Time
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(pool Pool) *SessionRepo {
	return &SessionRepo{pool: pool, now: time.Now}
}

// Create inserts a new session.
func (r *SessionRepo) Create(ctx context.Context, s *domain.PaymentSession) error {
	query := `INSERT INTO payment_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.TransactionID, s.RecipientAddress, s.ExpectedAmount, s.Status,
		nullString(s.TransactionHash), s.VendorEmail, s.CustomerEmail,
		s.CreatedAt, s.ExpiresAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get fetches a session by ID.
func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ConditionalSetTerminal moves a session to a terminal status only if its
// stored status still equals u.ExpectedStatus, and records the transition in
// session_events within the same transaction.
func (r *SessionRepo) ConditionalSetTerminal(ctx context.Context, u domain.TerminalUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE payment_sessions SET status = $1, transaction_hash = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		u.NewStatus, nullString(u.TransactionHash), r.now().UTC(), u.SessionID, u.ExpectedStatus,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payment_sessions WHERE id = $1)`, u.SessionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check session exists: %w", err)
		}
		if !exists {
			return domain.ErrSessionNotFound
		}
		return domain.ErrRaceLost
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO session_events (session_id, from_status, to_status, transaction_hash)
		VALUES ($1, $2, $3, $4)`,
		u.SessionID, u.ExpectedStatus, u.NewStatus, nullString(u.TransactionHash),
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListPendingBefore returns pending sessions created at or before now,
// oldest first.
func (r *SessionRepo) ListPendingBefore(ctx context.Context, now time.Time) ([]domain.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions
		WHERE status = $1 AND created_at <= $2
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, domain.SessionStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (*domain.PaymentSession, error) {
	s := &domain.PaymentSession{}
	var txHash *string
	err := row.Scan(
		&s.ID, &s.TransactionID, &s.RecipientAddress, &s.ExpectedAmount, &s.Status,
		&txHash, &s.VendorEmail, &s.CustomerEmail,
		&s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if txHash != nil {
		s.TransactionHash = *txHash
	}
	return s, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
