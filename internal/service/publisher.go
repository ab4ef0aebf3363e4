// Package service holds the domain services that sit between the HTTP
// handlers and the persistence gateway: the report lifecycle engine, the
// admin onboarding gate, the reward catalogue and event publishing.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cleancity/internal/queue"
)

// EventPublisher delivers domain events to downstream consumers.
type EventPublisher interface {
	PublishReportCompleted(ctx context.Context, ev queue.ReportCompletedEvent) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishReportCompleted(context.Context, queue.ReportCompletedEvent) error {
	return nil
}

// AMQPPublisher publishes events to RabbitMQ. It opens a connection per
// event; completions are rare enough that pooling is not worth the
// reconnect handling.
type AMQPPublisher struct {
	URL string
	Log logrus.FieldLogger
}

// PublishReportCompleted publishes ev to the durable report.completed
// queue as a persistent JSON message. Errors are logged and returned so
// the caller can decide to ignore them.
func (p *AMQPPublisher) PublishReportCompleted(ctx context.Context, ev queue.ReportCompletedEvent) error {
	log := p.Log.WithField("report_id", ev.ReportID)

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.ReportCompletedQueue, true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return fmt.Errorf("declare queue: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Type:         queue.ReportCompletedQueue,
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", queue.ReportCompletedQueue, false, false, pub); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func newEventID() string { return uuid.NewString() }
