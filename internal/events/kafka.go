package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
)

// KafkaProducer streams mutation events, one topic per event type.
type KafkaProducer struct {
	writers map[Type]*kafka.Writer
	logger  *logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log *logger.Logger) *KafkaProducer {
	writers := map[Type]*kafka.Writer{
		BookingCreated: kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topics.BookingCreated,
		}),
		PaymentConfirmed: kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topics.PaymentConfirmed,
		}),
	}
	return &KafkaProducer{writers: writers, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, event Event) error {
	writer, ok := p.writers[event.Type]
	if !ok {
		return fmt.Errorf("no topic configured for event type %s", event.Type)
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.BookingID),
		Value: msgBytes,
	})
	if err != nil {
		return err
	}
	p.logger.Info("KAFKA", fmt.Sprintf("published %s for booking %s", event.Type, event.BookingID))
	return nil
}

func (p *KafkaProducer) Close() error {
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EnsureTopicsExist creates the event topics if the broker doesn't have them
// yet. Failures are reported but non-fatal; brokers with auto-create enabled
// don't need this at all.
func EnsureTopicsExist(brokers []string, topics []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", controller.Host)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	return controllerConn.CreateTopics(configs...)
}

// MockProducer stands in when Kafka is disabled or mocked; it only logs.
type MockProducer struct {
	Logger *logger.Logger
}

func (m *MockProducer) Publish(_ context.Context, event Event) error {
	m.Logger.Info("KAFKA", fmt.Sprintf("mock publish %s for booking %s", event.Type, event.BookingID))
	return nil
}
