// Package eventbus publishes one-way run lifecycle events. Nothing in the
// orchestrator ever reads them back; they exist for external observers
// (dashboards, audit logs). Grounded on the teacher's Kafka protocol
// backend, trimmed to the producer half since this spec has no agent-to-agent
// messaging to read back.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/observability"
)

// EventKind names the lifecycle point a RunEvent marks.
type EventKind string

const (
	RunStarted    EventKind = "run_started"
	NodeCompleted EventKind = "node_completed"
	RunFinished   EventKind = "run_finished"
)

// RunEvent is one published lifecycle record.
type RunEvent struct {
	RunID  string    `json:"run_id"`
	Kind   EventKind `json:"kind"`
	NodeID string    `json:"node_id,omitempty"`
	Status string    `json:"status,omitempty"`
	At     time.Time `json:"at"`
}

// EventBus publishes RunEvents. Publish never blocks the caller on a
// delivery guarantee; failures are logged and returned, and the orchestrator
// discards the returned error, since no SPEC_FULL.md component's correctness
// depends on an event being observed.
type EventBus interface {
	Publish(ctx context.Context, event RunEvent) error
	Close() error
}

// NoopEventBus discards every event. Used when ORCH_EVENTBUS_BACKEND=noop.
type NoopEventBus struct{}

func NewNoopEventBus() *NoopEventBus { return &NoopEventBus{} }

func (*NoopEventBus) Publish(context.Context, RunEvent) error { return nil }
func (*NoopEventBus) Close() error                             { return nil }

// KafkaConfig configures the Kafka-backed event bus.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaEventBus publishes run events to a single Kafka topic, grounded on
// the teacher's KafkaProtocol.getWriter construction.
type KafkaEventBus struct {
	writer *kafka.Writer
	logger observability.Logger
}

func NewKafkaEventBus(cfg KafkaConfig, logger observability.Logger) *KafkaEventBus {
	if logger == nil {
		logger = observability.NewNoOpLogger()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return &KafkaEventBus{writer: writer, logger: logger}
}

func (b *KafkaEventBus) Publish(ctx context.Context, event RunEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal run event", observability.Err(err))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.RunID),
		Value: payload,
		Time:  event.At,
	}

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		b.logger.Error("failed to publish run event",
			observability.String("kind", string(event.Kind)),
			observability.String("run_id", event.RunID),
			observability.Err(err))
		return err
	}
	return nil
}

func (b *KafkaEventBus) Close() error {
	return b.writer.Close()
}
