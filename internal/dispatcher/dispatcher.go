package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/ucs-gateway/internal/body"
	"github.com/example/ucs-gateway/internal/model"
	"github.com/example/ucs-gateway/internal/ucs"
)

// EventPublisher is satisfied by *ucs.Publisher.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev ucs.Event) error
}

// Dispatcher fans accepted messages out to one record per recipient on the
// recipient's channel topic.
type Dispatcher struct {
	ReaderFactory func() ucs.Reader
	WriterFactory func(topic string) ucs.Writer
	Events        EventPublisher
	DLQTopic      string
	ServerID      string
	Logger        zerolog.Logger
}

// Delivery is what a channel transport receives.
type Delivery struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	RecipientID    string `json:"recipient_id"`
	ServiceID      string `json:"service_id"`
	Address        string `json:"address"`
	Subject        string `json:"subject,omitempty"`
	Content        string `json:"content"`
	MimeType       string `json:"mime_type"`
}

// DeadLetter records why a message or delivery was not routed.
type DeadLetter struct {
	Reason   string          `json:"reason"`
	Delivery *Delivery       `json:"delivery,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

var routed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatcher_deliveries_total",
	Help: "Per-recipient deliveries by channel and outcome",
}, []string{"channel", "outcome"})

func (d *Dispatcher) Run(ctx context.Context) error {
	if d.ReaderFactory == nil || d.WriterFactory == nil || d.Events == nil {
		return errors.New("dispatcher requires reader and writer factories and an event publisher")
	}
	reader := d.ReaderFactory()
	defer reader.Close()

	tracer := otel.Tracer("dispatcher")

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		msg, err := model.Unmarshal(m.Value)
		if err != nil {
			d.Logger.Error().Err(err).Msg("failed to decode message")
			if err := d.deadLetter(ctx, string(m.Key), DeadLetter{Reason: err.Error(), Raw: m.Value}); err != nil {
				return err
			}
			_ = reader.CommitMessages(ctx, m)
			continue
		}

		spanCtx, span := tracer.Start(ctx, "dispatch")
		span.SetAttributes(
			attribute.String("message.id", msg.ID()),
			attribute.Int("message.recipients", len(msg.Header.Recipients)),
		)
		if err := d.dispatch(spanCtx, msg); err != nil {
			span.RecordError(err)
			span.End()
			return err
		}
		span.End()

		if err := reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

// dispatch routes every recipient of msg. Only write failures are returned;
// per-recipient routing problems become exceptions and dead letters.
func (d *Dispatcher) dispatch(ctx context.Context, msg model.Message) error {
	for _, r := range msg.Header.Recipients {
		delivery := Delivery{
			MessageID:      msg.ID(),
			ConversationID: msg.Header.RelatedConversationID,
			RecipientID:    r.RecipientID,
			ServiceID:      r.ServiceID(),
			Address:        r.Address(),
			Subject:        msg.Header.Subject,
		}

		topic := topicForChannel(r.ServiceID())
		if topic == "" {
			d.Logger.Warn().Str("channel", r.ServiceID()).Str("message_id", msg.ID()).Msg("unknown channel, sending to DLQ")
			routed.WithLabelValues("unknown", "dlq").Inc()
			if err := d.reject(ctx, msg, r, delivery, model.ExceptionUnknownService,
				fmt.Sprintf("Unknown service '%s'", r.ServiceID())); err != nil {
				return err
			}
			continue
		}

		part, err := body.ContentFor(msg, r)
		if err != nil {
			d.Logger.Warn().Err(err).Str("recipient_id", r.RecipientID).Str("message_id", msg.ID()).Msg("no body for recipient, sending to DLQ")
			routed.WithLabelValues(r.ServiceID(), "dlq").Inc()
			if err := d.reject(ctx, msg, r, delivery, model.ExceptionInvalidMessage,
				fmt.Sprintf("No message part for recipient '%s'", r.RecipientID)); err != nil {
				return err
			}
			continue
		}
		delivery.Content, delivery.MimeType = part.Content, part.MimeType

		payload, err := json.Marshal(delivery)
		if err != nil {
			return fmt.Errorf("marshal delivery: %w", err)
		}
		if err := d.WriterFactory(topic).WriteMessages(ctx, kafka.Message{
			Key:   []byte(msg.ID() + ":" + r.RecipientID),
			Value: payload,
		}); err != nil {
			return fmt.Errorf("write message: %w", err)
		}
		routed.WithLabelValues(r.ServiceID(), "ok").Inc()
	}
	return nil
}

func (d *Dispatcher) reject(ctx context.Context, msg model.Message, r model.Recipient, delivery Delivery, typ model.ExceptionType, fault string) error {
	exc := model.ProcessingException{
		ExceptionID:         uuid.NewString(),
		GeneratingMessageID: msg.ID(),
		Fault:               fault,
		TypeSpecificContext: r.RecipientID,
		IssuingService:      r.ServiceID(),
		Type:                typ,
	}
	ev := ucs.ExceptionEvent(msg, msg.Header.Sender, r.DeliveryAddress.Physical, exc, d.ServerID)
	if err := d.Events.PublishEvent(ctx, ev); err != nil {
		return fmt.Errorf("publish exception: %w", err)
	}
	return d.deadLetter(ctx, msg.ID()+":"+r.RecipientID, DeadLetter{Reason: fault, Delivery: &delivery})
}

func (d *Dispatcher) deadLetter(ctx context.Context, key string, dl DeadLetter) error {
	topic := d.DLQTopic
	if topic == "" {
		topic = "dlq.ucs"
	}
	payload, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := d.WriterFactory(topic).WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		return fmt.Errorf("write dead letter: %w", err)
	}
	return nil
}

func topicForChannel(channel string) string {
	switch channel {
	case model.ServiceSMS:
		return "dispatch.sms"
	case model.ServiceEmail:
		return "dispatch.email"
	case model.ServiceChat:
		return "dispatch.chat"
	case model.ServiceTextToVoice:
		return "dispatch.voice"
	case model.ServiceAlert:
		return "dispatch.alert"
	default:
		return ""
	}
}
