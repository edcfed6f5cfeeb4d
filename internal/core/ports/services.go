package ports

import (
	"context"
	"time"

	"payment-session-reconciler/internal/core/domain"

	"github.com/google/uuid"
)

// LedgerClient queries the external transaction feed for transfers to an
// address. Any failure is reported wrapped in domain.ErrTransient; the client
// makes a single attempt per call.
type LedgerClient interface {
	FetchTransfers(ctx context.Context, address string, cursor string) ([]domain.LedgerTransaction, string, error)
}

// Notifier hands vendor/customer notifications to the email subsystem.
type Notifier interface {
	NotifyCompleted(ctx context.Context, email, amount, transactionHash string, sessionID uuid.UUID) error
	NotifyExpired(ctx context.Context, email, amount string, sessionID uuid.UUID) error
}

// SessionDispatcher is the subset of the job dispatcher the session service
// depends on.
type SessionDispatcher interface {
	Submit(session domain.PaymentSession) (WorkerHandle, error)
	Cancel(sessionID uuid.UUID) bool
}

// WorkerHandle observes a submitted reconciliation job.
type WorkerHandle interface {
	SessionID() uuid.UUID
	// Done is closed once the worker has exited (or was dropped from the queue).
	Done() <-chan struct{}
	// Outcome is meaningful only after Done is closed.
	Outcome() domain.Outcome
	Cancel()
}

// TokenService validates service tokens presented by the commerce subsystem.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Issuer  string
}

// --- Service Ports (Business Logic) ---

// SessionService is the inbound interface used by the commerce subsystem.
type SessionService interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.PaymentSession, error)
	CancelSession(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
}

// CreateSessionRequest holds validated input for session creation.
type CreateSessionRequest struct {
	TransactionID    string
	RecipientAddress string
	ExpectedAmount   string
	VendorEmail      string
	CustomerEmail    *string
	ExpiresInMinutes int // 0 = configured default
}
