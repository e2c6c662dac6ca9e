package audit

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes audit events to a Kafka topic, keyed by correlation id
// so related events land in one partition. Publish failures are logged
// locally and swallowed; audit delivery is best effort by contract.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CorrelationID),
		Value: data,
	}); err != nil {
		log.Printf("audit: kafka publish failed for %s: %v", event.CorrelationID, err)
	}
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
