package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Event types consumed by the email service.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentExpired   = "payment.expired"
)

// Event is the JSON payload published for each notification.
type Event struct {
	EventID         uuid.UUID `json:"event_id"`
	Type            string    `json:"type"`
	SessionID       uuid.UUID `json:"session_id"`
	Email           string    `json:"email"`
	Amount          string    `json:"amount"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier implements ports.Notifier by publishing events to a topic.
// Messages are keyed by session ID so events for one session stay ordered.
type KafkaNotifier struct {
	writer MessageWriter
	now    func() time.Time
	log    zerolog.Logger
}

// NewKafkaWriter builds the producer for topic.
func NewKafkaWriter(brokers []string, topic string, writeTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaNotifier creates a notifier publishing through writer.
func NewKafkaNotifier(writer MessageWriter, log zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, now: time.Now, log: log}
}

func (n *KafkaNotifier) NotifyCompleted(ctx context.Context, email, amount, transactionHash string, sessionID uuid.UUID) error {
	return n.publish(ctx, Event{
		Type:            EventPaymentCompleted,
		SessionID:       sessionID,
		Email:           email,
		Amount:          amount,
		TransactionHash: transactionHash,
	})
}

func (n *KafkaNotifier) NotifyExpired(ctx context.Context, email, amount string, sessionID uuid.UUID) error {
	return n.publish(ctx, Event{
		Type:      EventPaymentExpired,
		SessionID: sessionID,
		Email:     email,
		Amount:    amount,
	})
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func (n *KafkaNotifier) publish(ctx context.Context, ev Event) error {
	ev.EventID = uuid.New()
	ev.OccurredAt = n.now().UTC()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.SessionID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}

	n.log.Debug().
		Str("event_type", ev.Type).
		Str("session_id", ev.SessionID.String()).
		Msg("notification published")
	return nil
}
