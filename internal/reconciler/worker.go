package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-session-reconciler/internal/core/domain"
	"payment-session-reconciler/internal/core/ports"
	"payment-session-reconciler/internal/metrics"

	"github.com/rs/zerolog"
)

// Worker reconciles a single pending session against the ledger until it
// reaches a terminal status, its context is cancelled, or it loses the
// conditional write to another worker.
type Worker struct {
	session  domain.PaymentSession
	repo     ports.SessionRepository
	ledger   ports.LedgerClient
	notifier ports.Notifier
	matcher  *Matcher
	seen     *DedupTracker
	cursor   string

	pollInterval time.Duration
	writeTimeout time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// WorkerDeps are the collaborators shared by every worker of a dispatcher.
type WorkerDeps struct {
	Repo     ports.SessionRepository
	Ledger   ports.LedgerClient
	Notifier ports.Notifier
	Matcher  *Matcher
}

// WorkerConfig tunes the poll loop.
type WorkerConfig struct {
	PollInterval time.Duration
	// WriteTimeout bounds terminal writes and notifications, which run on a
	// context detached from the worker's cancellation.
	WriteTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewWorker creates a worker for session.
func NewWorker(session domain.PaymentSession, deps WorkerDeps, cfg WorkerConfig, log zerolog.Logger) *Worker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Worker{
		session:      session,
		repo:         deps.Repo,
		ledger:       deps.Ledger,
		notifier:     deps.Notifier,
		matcher:      deps.Matcher,
		seen:         NewDedupTracker(),
		pollInterval: cfg.PollInterval,
		writeTimeout: writeTimeout,
		now:          now,
		log:          log.With().Str("session_id", session.ID.String()).Logger(),
	}
}

// Run polls until the session is settled or ctx is cancelled. Cancellation
// never writes a status change.
func (w *Worker) Run(ctx context.Context) domain.Outcome {
	w.log.Debug().Time("expires_at", w.session.ExpiresAt).Msg("worker started")

	for {
		if ctx.Err() != nil {
			return domain.OutcomeCancelled
		}

		// Expiry takes precedence over anything the ledger may hold.
		if w.session.IsExpiredAt(w.now()) {
			return w.expire()
		}

		if outcome, done := w.poll(ctx); done {
			return outcome
		}

		wait := w.pollInterval
		if remaining := w.session.ExpiresAt.Sub(w.now()); remaining < wait {
			wait = remaining
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.OutcomeCancelled
		case <-timer.C:
		}
	}
}

// poll runs one fetch-and-match pass. done is true when the worker must stop.
func (w *Worker) poll(ctx context.Context) (domain.Outcome, bool) {
	txs, next, err := w.ledger.FetchTransfers(ctx, w.session.RecipientAddress, w.cursor)
	if err != nil {
		if ctx.Err() != nil {
			return domain.OutcomeCancelled, true
		}
		if !errors.Is(err, domain.ErrTransient) {
			err = fmt.Errorf("%w: %v", domain.ErrTransient, err)
		}
		w.log.Warn().Err(err).Str("cursor", w.cursor).Msg("ledger fetch failed, retrying next tick")
		return domain.OutcomeNone, false
	}
	w.cursor = next

	for _, tx := range txs {
		if !w.seen.Add(tx.Hash) {
			continue
		}
		// The recipient address is reused across sessions; only payments
		// made after this session was opened can settle it.
		if tx.Predates(w.session.CreatedAt) {
			w.log.Debug().Str("tx_hash", tx.Hash).Time("block_time", tx.Timestamp).Msg("transaction predates session")
			continue
		}
		matched, err := w.matcher.Match(tx, &w.session)
		if err != nil {
			return w.fail(fmt.Errorf("match transaction %s: %w", tx.Hash, err)), true
		}
		if matched {
			return w.complete(tx.Hash), true
		}
		w.log.Debug().Str("tx_hash", tx.Hash).Msg("transaction does not match")
	}
	return domain.OutcomeNone, false
}

func (w *Worker) complete(txHash string) domain.Outcome {
	log := w.log.With().Str("tx_hash", txHash).Logger()

	err := w.setTerminal(domain.SessionStatusCompleted, txHash)
	switch {
	case errors.Is(err, domain.ErrRaceLost):
		log.Debug().Msg("session settled elsewhere, dropping match")
		return domain.OutcomeRaceLost
	case err != nil:
		return w.fail(fmt.Errorf("persist completion: %w", err))
	}

	log.Info().Str("status", string(domain.SessionStatusCompleted)).Msg("payment session completed")

	ctx, cancel := w.detached()
	defer cancel()

	w.notify(log, "completed", w.notifier.NotifyCompleted(ctx, w.session.VendorEmail, w.session.ExpectedAmount, txHash, w.session.ID))
	if w.session.HasCustomerEmail() {
		w.notify(log, "completed", w.notifier.NotifyCompleted(ctx, *w.session.CustomerEmail, w.session.ExpectedAmount, txHash, w.session.ID))
	}
	return domain.OutcomeCompleted
}

func (w *Worker) expire() domain.Outcome {
	err := w.setTerminal(domain.SessionStatusExpired, "")
	switch {
	case errors.Is(err, domain.ErrRaceLost):
		w.log.Debug().Msg("session settled elsewhere, skipping expiry")
		return domain.OutcomeRaceLost
	case err != nil:
		return w.fail(fmt.Errorf("persist expiry: %w", err))
	}

	w.log.Info().Str("status", string(domain.SessionStatusExpired)).Int("seen", w.seen.Len()).Msg("payment session expired")

	ctx, cancel := w.detached()
	defer cancel()

	w.notify(w.log, "expired", w.notifier.NotifyExpired(ctx, w.session.VendorEmail, w.session.ExpectedAmount, w.session.ID))
	return domain.OutcomeExpired
}

// fail records an internal error as a failed session. It is not retried.
func (w *Worker) fail(cause error) domain.Outcome {
	w.log.Error().Err(cause).Bool("alert", true).Msg("reconciliation failed")

	err := w.setTerminal(domain.SessionStatusFailed, "")
	switch {
	case errors.Is(err, domain.ErrRaceLost):
		return domain.OutcomeRaceLost
	case err != nil:
		w.log.Error().Err(err).Bool("alert", true).Msg("could not record failed status")
	}
	return domain.OutcomeFailed
}

func (w *Worker) setTerminal(status domain.SessionStatus, txHash string) error {
	ctx, cancel := w.detached()
	defer cancel()

	err := w.repo.ConditionalSetTerminal(ctx, domain.TerminalUpdate{
		SessionID:       w.session.ID,
		ExpectedStatus:  domain.SessionStatusPending,
		NewStatus:       status,
		TransactionHash: txHash,
	})
	if err == nil {
		metrics.TerminalTransitions.WithLabelValues(string(status)).Inc()
	}
	return err
}

func (w *Worker) notify(log zerolog.Logger, kind string, err error) {
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(kind, "error").Inc()
		log.Error().Err(err).Str("kind", kind).Msg("notification failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues(kind, "ok").Inc()
}

// detached returns a context that outlives worker cancellation so a decided
// outcome is always persisted and announced.
func (w *Worker) detached() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), w.writeTimeout)
}
