package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/foodlens/quotagate/internal/config"
	"github.com/foodlens/quotagate/internal/logging"
	"github.com/foodlens/quotagate/internal/metrics"
	"github.com/foodlens/quotagate/pkg/models"
)

const (
	// ExchangeName is the topic exchange usage events are published to.
	ExchangeName = "quota.events"

	RoutingKeyConsumed = "quota.consumed"
	RoutingKeyDenied   = "quota.denied"
)

// Event is a usage event emitted for every admission decision, consumed
// by analytics and billing pipelines.
type Event struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	QuotaType  models.QuotaType `json:"quota_type"`
	Tier       models.Tier      `json:"tier"`
	Allowed    bool             `json:"allowed"`
	Limit      int64            `json:"limit"`
	Remaining  int64            `json:"remaining"`
	ResetDate  time.Time        `json:"reset_date,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Publisher publishes usage events to RabbitMQ. Publishing is best
// effort: a broker outage must never block or fail admission.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *logging.Logger
}

// NewPublisher connects to RabbitMQ and declares the events exchange.
func NewPublisher(cfg config.QueueConfig, log *logging.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:    conn,
		channel: channel,
		log:     log,
	}, nil
}

// Publish sends one event to the exchange.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	routingKey := RoutingKeyConsumed
	if !event.Allowed {
		routingKey = RoutingKeyDenied
	}

	err = p.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		metrics.RecordEventPublished(routingKey, "error")
		return fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.RecordEventPublished(routingKey, "success")
	return nil
}

// AdmissionDecided implements the gate's decision sink: it publishes in
// the background and only logs on failure.
func (p *Publisher) AdmissionDecided(userID string, decision models.Decision) {
	event := Event{
		ID:         uuid.New().String(),
		UserID:     userID,
		QuotaType:  decision.QuotaType,
		Tier:       decision.Tier,
		Allowed:    decision.Allowed,
		Limit:      decision.Limit,
		Remaining:  decision.Remaining,
		ResetDate:  decision.ResetDate,
		OccurredAt: time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil {
			p.log.WithError(err).WithUserID(userID).Warn("failed to publish usage event")
		}
	}()
}

// Close closes the publisher connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
