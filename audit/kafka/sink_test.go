package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestSinkPublishesKeyedEvent(t *testing.T) {
	w := &recordingWriter{}
	s := newSink(w, time.Second, zap.NewNop())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Emit(context.Background(), goRiskAuth.SecurityEvent{
		ID:        "e1",
		Type:      "login_blocked",
		UserID:    "u1",
		Timestamp: at,
		Metadata:  map[string]string{"risk_score": "90"},
	})

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	require.Equal(t, "u1", string(msg.Key))
	require.Equal(t, at, msg.Time)
	require.Equal(t, "event_type", msg.Headers[0].Key)
	require.Equal(t, "login_blocked", string(msg.Headers[0].Value))

	var decoded goRiskAuth.SecurityEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "90", decoded.Metadata["risk_score"])

	require.NoError(t, s.Close())
	require.True(t, w.closed)
}

func TestSinkPreAuthEventsKeyedByIP(t *testing.T) {
	w := &recordingWriter{}
	newSink(w, 0, nil).Emit(context.Background(), goRiskAuth.SecurityEvent{Type: "login_failed", IP: "198.51.100.7"})
	require.Equal(t, "198.51.100.7", string(w.msgs[0].Key))
}

func TestSinkLogsWriteFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := &recordingWriter{err: errors.New("broker down")}
	newSink(w, time.Second, zap.New(core)).Emit(context.Background(), goRiskAuth.SecurityEvent{ID: "e2", Type: "logout"})

	require.Equal(t, 1, logs.FilterMessage("publish security event").Len())
}

func TestNewSinkValidates(t *testing.T) {
	_, err := NewSink(Config{Topic: "security-events"}, nil)
	require.Error(t, err)
	_, err = NewSink(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.Error(t, err)

	s, err := NewSink(Config{Brokers: []string{"localhost:9092"}, Topic: "security-events"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
