package broker

import (
	contextPkg "SafeRoad/pkg/context"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	EventDefectsCommitted = "defect.committed"
	EventReportCommitted  = "defect.report.committed"

	defaultExchange = "saferoad.events"
	source          = "saferoad"
)

var ErrClosed = errors.New("broker connection closed")

// Event is the envelope for every message put on the exchange.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type IBroker interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type rabbitBroker struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	log      *logrus.Logger
	mu       sync.RWMutex
	closed   bool
}

// New picks the event backend from the environment: RabbitMQ when
// RABBITMQ_URL is set, Kafka when KAFKA_BOOTSTRAP_SERVERS is set, otherwise a
// broker that drops every event.
func New(log *logrus.Logger) (IBroker, error) {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		if os.Getenv("KAFKA_BOOTSTRAP_SERVERS") != "" {
			return newKafka(log)
		}
		log.Info("No event broker configured, commit events will not be published")
		return Noop{}, nil
	}

	exchange := os.Getenv("RABBITMQ_EXCHANGE")
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.WithField("exchange", exchange).Info("Connected to RabbitMQ")

	return &rabbitBroker{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func newWithChannel(ch channel, exchange string, log *logrus.Logger) *rabbitBroker {
	return &rabbitBroker{channel: ch, exchange: exchange, log: log}
}

func (b *rabbitBroker) Publish(ctx context.Context, eventType string, data interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	event, body, err := newEvent(ctx, eventType, data)
	if err != nil {
		return err
	}

	err = b.channel.PublishWithContext(ctx,
		b.exchange,
		eventType,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: event.RequestID,
			MessageId:     event.ID,
			Timestamp:     event.Timestamp,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.log.WithFields(logrus.Fields{
		"event_type": eventType,
		"event_id":   event.ID,
		"request_id": event.RequestID,
	}).Debug("event published")

	return nil
}

func (b *rabbitBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.channel.Close(); err != nil {
		b.log.WithError(err).Warn("failed to close channel")
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	return nil
}

func newEvent(ctx context.Context, eventType string, data interface{}) (Event, []byte, error) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		RequestID: contextPkg.GetRequestID(ctx),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	body, err := jsoniter.Marshal(event)
	if err != nil {
		return Event{}, nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return event, body, nil
}

type Noop struct{}

func (Noop) Publish(context.Context, string, interface{}) error { return nil }
func (Noop) Close() error                                       { return nil }
