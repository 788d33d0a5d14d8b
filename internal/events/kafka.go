package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards engine events to a Kafka topic as JSON.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaWriter builds a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// Attach subscribes the sink to every engine event type.
func (s *KafkaSink) Attach(m *Manager) {
	for _, t := range AllEventTypes {
		m.Subscribe(t, s.Handle)
	}
}

// Handle encodes and writes one event. Messages are keyed by promotion id
// so events of one promotion stay ordered within a partition.
func (s *KafkaSink) Handle(ctx context.Context, event Event) error {
	msg, err := EncodeMessage(event)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s to kafka: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// EncodeMessage renders event as a Kafka message.
func EncodeMessage(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(messageKey(event)),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

func messageKey(event Event) string {
	switch data := event.Data.(type) {
	case PromotionRedeemedData:
		return strconv.FormatInt(data.Usage.PromotionID, 10)
	case DirectPromotionAppliedData:
		return "direct:" + strconv.FormatInt(data.PromotionID, 10)
	case FreeShippingToggledData:
		return "direct:" + strconv.FormatInt(data.PromotionID, 10)
	default:
		return string(event.Type)
	}
}
