package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a payment session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusFailed    SessionStatus = "failed"
)

// IsTerminal returns true if no further transitions are allowed from s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted ||
		s == SessionStatusExpired ||
		s == SessionStatusFailed
}

// IsValid reports whether s is one of the four exposed status values.
func (s SessionStatus) IsValid() bool {
	return s == SessionStatusPending || s.IsTerminal()
}

func (s SessionStatus) String() string {
	return string(s)
}

// PaymentSession is one pending payment request awaiting a matching transfer
// on the external ledger.
type PaymentSession struct {
	ID               uuid.UUID     `json:"session_id"`
	TransactionID    string        `json:"transaction_id"` // Commerce-side payment/product request reference
	RecipientAddress string        `json:"recipient_address"`
	ExpectedAmount   string        `json:"expected_amount"` // Ledger base units, no denomination
	Status           SessionStatus `json:"status"`
	TransactionHash  string        `json:"transaction_hash,omitempty"` // Set only on completion
	VendorEmail      string        `json:"vendor_email"`
	CustomerEmail    *string       `json:"customer_email,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewPaymentSession builds a pending session whose expiry is fixed at
// creation time.
func NewPaymentSession(transactionID, recipient, amount, vendorEmail string, customerEmail *string, window time.Duration, now time.Time) *PaymentSession {
	now = now.UTC()
	return &PaymentSession{
		ID:               uuid.New(),
		TransactionID:    transactionID,
		RecipientAddress: recipient,
		ExpectedAmount:   amount,
		Status:           SessionStatusPending,
		VendorEmail:      vendorEmail,
		CustomerEmail:    customerEmail,
		CreatedAt:        now,
		ExpiresAt:        now.Add(window),
		UpdatedAt:        now,
	}
}

// IsTerminal returns true if the session is in a final state.
func (s *PaymentSession) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// IsExpiredAt reports whether the session deadline has been reached at now.
func (s *PaymentSession) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// HasCustomerEmail returns true if a customer notification target exists.
func (s *PaymentSession) HasCustomerEmail() bool {
	return s.CustomerEmail != nil && *s.CustomerEmail != ""
}

// TerminalUpdate is the payload of a conditional terminal write.
type TerminalUpdate struct {
	SessionID       uuid.UUID
	ExpectedStatus  SessionStatus
	NewStatus       SessionStatus
	TransactionHash string // Required for completed, must be empty otherwise
}

// Validate checks the transactionHash-iff-completed invariant before a write.
func (u TerminalUpdate) Validate() error {
	if !u.NewStatus.IsTerminal() {
		return ErrInvalidTransition
	}
	if u.ExpectedStatus.IsTerminal() {
		return ErrInvalidTransition
	}
	if (u.NewStatus == SessionStatusCompleted) != (u.TransactionHash != "") {
		return ErrInvalidTransition
	}
	return nil
}

// Outcome is how a reconciliation worker finished.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeExpired   Outcome = "expired"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled" // Stopped without writing status
	OutcomeRaceLost  Outcome = "race_lost" // Another writer reached a terminal status first
)
