// Package kafka publishes security events to a Kafka topic for SIEM consumers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config selects brokers, topic and the per-event write timeout.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Sink is a goRiskAuth.AuditSink backed by a kafka-go writer. Events are keyed by
// user id so one user's events stay ordered within a partition.
type Sink struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

var _ goRiskAuth.AuditSink = (*Sink)(nil)

// NewSink builds a writer that waits for all in-sync replicas.
func NewSink(cfg Config, logger *zap.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka sink requires a topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return newSink(w, cfg.WriteTimeout, logger), nil
}

func newSink(w messageWriter, timeout time.Duration, logger *zap.Logger) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{writer: w, timeout: timeout, logger: logger.Named("kafka_audit")}
}

// Emit publishes one event. Failures are logged; the dispatcher has no retry channel.
func (s *Sink) Emit(ctx context.Context, event goRiskAuth.SecurityEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encode security event", zap.String("event_type", event.Type), zap.Error(err))
		return
	}

	key := event.UserID
	if key == "" {
		key = event.IP
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		s.logger.Warn("publish security event",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
