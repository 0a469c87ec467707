package broker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

const (
	defaultTopic   = "saferoad.defects"
	flushTimeoutMs = 15000
)

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

type kafkaBroker struct {
	producer producer
	topic    string
	log      *logrus.Logger
	mu       sync.RWMutex
	closed   bool
}

func newKafka(log *logrus.Logger) (IBroker, error) {
	cfg := &kafka.ConfigMap{
		"bootstrap.servers":   os.Getenv("KAFKA_BOOTSTRAP_SERVERS"),
		"acks":                "all",
		"enable.idempotence":  true,
		"linger.ms":           10,
		"compression.type":    "snappy",
		"delivery.timeout.ms": 120000,
	}
	if protocol := os.Getenv("KAFKA_SECURITY_PROTOCOL"); protocol != "" {
		_ = cfg.SetKey("security.protocol", protocol)
		_ = cfg.SetKey("sasl.mechanism", envOr("KAFKA_SASL_MECHANISM", "PLAIN"))
		_ = cfg.SetKey("sasl.username", os.Getenv("KAFKA_SASL_USERNAME"))
		_ = cfg.SetKey("sasl.password", os.Getenv("KAFKA_SASL_PASSWORD"))
	}

	p, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	topic := envOr("KAFKA_TOPIC", defaultTopic)

	// Client-level errors arrive here; per-message results use their own channel.
	go func() {
		for e := range p.Events() {
			if kerr, ok := e.(kafka.Error); ok {
				log.WithField("error", kerr.Error()).Warn("Kafka producer error")
			}
		}
	}()

	log.WithField("topic", topic).Info("Connected to Kafka")

	return newWithProducer(p, topic, log), nil
}

func newWithProducer(p producer, topic string, log *logrus.Logger) *kafkaBroker {
	return &kafkaBroker{producer: p, topic: topic, log: log}
}

// Publish waits for the delivery report of the event or for ctx to end.
func (b *kafkaBroker) Publish(ctx context.Context, eventType string, data interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	event, body, err := newEvent(ctx, eventType, data)
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	err = b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &b.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.ID),
		Value:          body,
		Timestamp:      event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "request_id", Value: []byte(event.RequestID)},
		},
	}, delivery)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("event delivery failed: %w", m.TopicPartition.Error)
		}
	}

	b.log.WithFields(logrus.Fields{
		"event_type": eventType,
		"event_id":   event.ID,
		"request_id": event.RequestID,
	}).Debug("event published")

	return nil
}

func (b *kafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if remaining := b.producer.Flush(flushTimeoutMs); remaining > 0 {
		b.log.WithField("pending", remaining).Warn("Kafka producer closed with undelivered events")
	}
	b.producer.Close()

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
