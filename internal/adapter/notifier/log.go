package notifier

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogNotifier implements ports.Notifier by logging events. Used when no
// brokers are configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyCompleted(_ context.Context, email, amount, transactionHash string, sessionID uuid.UUID) error {
	n.log.Info().
		Str("event_type", EventPaymentCompleted).
		Str("session_id", sessionID.String()).
		Str("email", email).
		Str("amount", amount).
		Str("tx_hash", transactionHash).
		Msg("notification")
	return nil
}

func (n *LogNotifier) NotifyExpired(_ context.Context, email, amount string, sessionID uuid.UUID) error {
	n.log.Info().
		Str("event_type", EventPaymentExpired).
		Str("session_id", sessionID.String()).
		Str("email", email).
		Str("amount", amount).
		Msg("notification")
	return nil
}

func (n *LogNotifier) Close() error { return nil }
