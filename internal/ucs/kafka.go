package ucs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer is the subset of *kafka.Writer used for publishing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON records to one topic, retrying transient failures.
type Publisher struct {
	Writer     Writer
	MaxElapsed time.Duration
}

func NewPublisher(w Writer) *Publisher {
	return &Publisher{Writer: w}
}

func (p *Publisher) Publish(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := kafka.Message{Key: []byte(key), Value: payload}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.MaxElapsed
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = 10 * time.Second
	}
	op := func() error {
		return p.Writer.WriteMessages(ctx, msg)
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// PublishEvent stamps and publishes ev keyed by the message it concerns.
func (p *Publisher) PublishEvent(ctx context.Context, ev Event) error {
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := p.Publish(ctx, ev.Key(), ev); err != nil {
		return err
	}
	eventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

func (p *Publisher) Close() error {
	return p.Writer.Close()
}
