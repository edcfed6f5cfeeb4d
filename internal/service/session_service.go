package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-session-reconciler/internal/core/domain"
	"payment-session-reconciler/internal/core/ports"
	"payment-session-reconciler/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SessionConfig bounds session windows.
type SessionConfig struct {
	DefaultWindow time.Duration
	MaxWindow     time.Duration
}

// SessionServiceImpl implements ports.SessionService.
type SessionServiceImpl struct {
	repo       ports.SessionRepository
	dispatcher ports.SessionDispatcher
	cfg        SessionConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewSessionService creates a new SessionServiceImpl.
func NewSessionService(
	repo ports.SessionRepository,
	dispatcher ports.SessionDispatcher,
	cfg SessionConfig,
	log zerolog.Logger,
) *SessionServiceImpl {
	return &SessionServiceImpl{
		repo:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// CreateSession persists a pending session and hands it to the dispatcher.
// A failed submit is not surfaced: the session stays pending in the store
// and the next recovery pass picks it up.
func (s *SessionServiceImpl) CreateSession(ctx context.Context, req ports.CreateSessionRequest) (*domain.PaymentSession, error) {
	if strings.TrimSpace(req.RecipientAddress) == "" {
		return nil, apperror.ErrInvalidAddress()
	}
	if !validAmount(req.ExpectedAmount) {
		return nil, apperror.ErrInvalidAmount()
	}
	if strings.TrimSpace(req.VendorEmail) == "" {
		return nil, apperror.Validation("vendor_email is required")
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, apperror.Validation("transaction_id is required")
	}

	window, err := s.window(req.ExpiresInMinutes)
	if err != nil {
		return nil, err
	}

	customer := req.CustomerEmail
	if customer != nil && strings.TrimSpace(*customer) == "" {
		customer = nil
	}

	session := domain.NewPaymentSession(
		req.TransactionID,
		req.RecipientAddress,
		req.ExpectedAmount,
		req.VendorEmail,
		customer,
		window,
		s.now(),
	)

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create session: %w", err))
	}

	if _, err := s.dispatcher.Submit(*session); err != nil {
		s.log.Warn().Err(err).
			Str("session_id", session.ID.String()).
			Msg("submit failed, session left for recovery")
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("transaction_id", session.TransactionID).
		Time("expires_at", session.ExpiresAt).
		Msg("payment session created")

	return session, nil
}

// CancelSession stops the session's worker and voids the session as
// expired without notifying anyone. Terminal sessions are returned as-is.
func (s *SessionServiceImpl) CancelSession(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return session, nil
	}

	stopped := s.dispatcher.Cancel(id)

	err = s.repo.ConditionalSetTerminal(ctx, domain.TerminalUpdate{
		SessionID:      id,
		ExpectedStatus: domain.SessionStatusPending,
		NewStatus:      domain.SessionStatusExpired,
	})
	switch {
	case errors.Is(err, domain.ErrRaceLost):
		// The worker settled the session before the cancel landed.
		return s.GetSession(ctx, id)
	case err != nil:
		return nil, apperror.ErrDatabaseError(fmt.Errorf("cancel session: %w", err))
	}

	s.log.Info().
		Str("session_id", id.String()).
		Bool("worker_stopped", stopped).
		Msg("payment session cancelled")

	session.Status = domain.SessionStatusExpired
	session.UpdatedAt = s.now().UTC()
	return session, nil
}

// GetSession reads a session from the store.
func (s *SessionServiceImpl) GetSession(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.FromDomain(err)
	}
	return session, nil
}

func (s *SessionServiceImpl) window(minutes int) (time.Duration, error) {
	maxMinutes := int(s.cfg.MaxWindow / time.Minute)
	if minutes == 0 {
		return s.cfg.DefaultWindow, nil
	}
	if minutes < 0 || minutes > maxMinutes {
		return 0, apperror.ErrInvalidExpiry(maxMinutes)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// validAmount accepts canonical positive integers only, since matching
// compares against the ledger's amount string.
func validAmount(amount string) bool {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return false
	}
	return d.IsPositive() && d.IsInteger() && d.String() == amount
}
