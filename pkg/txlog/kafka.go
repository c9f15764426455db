package txlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes round records as JSON to a Kafka topic, keyed by the
// round timestamp so downstream consumers can partition by time.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (s *KafkaSink) WriteRound(ctx context.Context, rec RoundLog) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal round: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(rec.Timestamp.UnixMilli(), 10)),
		Value: value,
	})
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

var _ Sink = (*KafkaSink)(nil)
