package ucs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/model"
	"github.com/example/ucs-gateway/internal/render"
	"github.com/example/ucs-gateway/internal/store"
)

// Broadcaster fans a rendered event out to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, kind gateway.EventKind, value any) error
}

// Consumer reads the events topic, folds delivery updates into the store and
// broadcasts every event in its rendered form.
type Consumer struct {
	ReaderFactory func() Reader
	Store         store.Store
	Broadcaster   Broadcaster
	Logger        zerolog.Logger
}

// Run blocks until ctx is cancelled or the reader fails. Records that cannot
// be decoded or applied are logged and committed so they never block the topic.
func (c *Consumer) Run(ctx context.Context) error {
	if c.ReaderFactory == nil || c.Broadcaster == nil || c.Store == nil {
		return errors.New("consumer requires a reader factory, a store and a broadcaster")
	}
	reader := c.ReaderFactory()
	defer reader.Close()

	tracer := otel.Tracer("ucs")

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch event: %w", err)
		}

		ev, err := DecodeEvent(m.Value)
		if err != nil {
			c.Logger.Error().Err(err).Int64("offset", m.Offset).Msg("failed to decode event")
			eventsConsumed.WithLabelValues("unknown", "invalid").Inc()
			_ = reader.CommitMessages(ctx, m)
			continue
		}

		spanCtx, span := tracer.Start(ctx, "ucs.event")
		span.SetAttributes(
			attribute.String("event.kind", string(ev.Kind)),
			attribute.String("message.id", ev.Key()),
		)

		outcome := "ok"
		if err := c.Handle(spanCtx, ev); err != nil {
			outcome = "error"
			span.RecordError(err)
			c.Logger.Error().Err(err).Str("kind", string(ev.Kind)).Str("message_id", ev.Key()).Msg("failed to apply event")
		}
		eventsConsumed.WithLabelValues(string(ev.Kind), outcome).Inc()
		span.End()

		if err := reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit event: %w", err)
		}
	}
}

// Handle applies one event and broadcasts it.
func (c *Consumer) Handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case gateway.EventResponse:
		status := *ev.Status
		updated, err := c.Store.UpdateMessage(ctx, ev.MessageID, func(m model.Message) (model.Message, error) {
			if _, ok := m.Recipient(status.RecipientID); !ok {
				return m, fmt.Errorf("message %s has no recipient %q", m.ID(), status.RecipientID)
			}
			// Every gateway instance and every redelivery sees the same status.
			if m.HasDeliveryStatus(status.ID) {
				return m, nil
			}
			return m.WithDeliveryStatus(status), nil
		})
		if err != nil {
			return err
		}
		return c.Broadcaster.Broadcast(ctx, ev.Kind, render.Message(updated))

	case gateway.EventException:
		var msg model.Message
		switch {
		case ev.Message != nil:
			msg = *ev.Message
		case ev.MessageID != "":
			stored, err := c.Store.Message(ctx, ev.MessageID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			msg = stored
		}
		notice := render.ExceptionNotice(msg, ev.Sender, ev.Receiver, *ev.Exception, ev.ServerID)
		return c.Broadcaster.Broadcast(ctx, ev.Kind, notice)

	case gateway.EventMessage:
		if err := c.Store.SaveMessage(ctx, *ev.Message); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return err
		}
		return c.Broadcaster.Broadcast(ctx, ev.Kind, render.Message(*ev.Message))

	default:
		return c.Broadcaster.Broadcast(ctx, ev.Kind, render.Message(*ev.Message))
	}
}
