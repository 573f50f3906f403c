package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"CoverLedger/internal/engine"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher republishes sealed engine outputs to NATS for
// downstream consumers (claim processors, analytics, the collector's
// own reconciliation). Subjects follow cover.events.{event_type}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan engine.Output
}

// publishedEvent is the outbound wire format.
type publishedEvent struct {
	Sequence   int64       `json:"sequence"`
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	Account    *uuid.UUID  `json:"account,omitempty"`
	CommandRef string      `json:"command_ref,omitempty"`
	Payload    interface{} `json:"payload"`
	StateHash  []byte      `json:"state_hash"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan engine.Output) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop. Publish failures are logged
// and dropped: the event log in Postgres is the durable record, and
// downstream consumers can query it directly.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, out); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", out.Envelope.Sequence, err)
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out engine.Output) error {
	env := out.Envelope
	evt := publishedEvent{
		Sequence:   env.Sequence,
		EventID:    env.EventID,
		EventType:  env.EventType.String(),
		Account:    env.Account,
		CommandRef: env.CommandRef,
		Payload:    env.Payload,
		StateHash:  env.StateHash[:],
		Timestamp:  env.Timestamp,
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("cover.events.%s", evt.EventType)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "COVER_EVENTS",
		Subjects:  []string{"cover.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream COVER_EVENTS")
	return nil
}
