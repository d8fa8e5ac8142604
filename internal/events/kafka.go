package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces one JSON message per event, keyed by account id so one
// account's transactions stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}}
}

func newKafkaSinkWithWriter(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, batch []models.TransactionEvent) error {
	const op = "events.KafkaSink.Write"

	msgs := make([]kafka.Message, 0, len(batch))
	for _, evt := range batch {
		value, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.AccountID),
			Value: value,
		})
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
