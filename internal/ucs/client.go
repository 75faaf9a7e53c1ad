// Package ucs is the backend a gateway session talks to: it accepts messages,
// resolves recipient addresses, persists state and publishes the resulting
// events that every gateway instance broadcasts.
package ucs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/ucs-gateway/internal/directory"
	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/model"
	"github.com/example/ucs-gateway/internal/store"
)

var (
	ErrNoSession      = errors.New("session not started")
	ErrInvalidMessage = errors.New("invalid message")
	ErrNotAlert       = errors.New("message is not an alert")
	ErrInvalidState   = errors.New("invalid alert state")

	errAlreadyRetracted = errors.New("alert already retracted")
)

// DefaultChannels are the delivery services the dispatcher routes.
var DefaultChannels = []string{
	model.ServiceSMS,
	model.ServiceEmail,
	model.ServiceChat,
	model.ServiceTextToVoice,
	model.ServiceAlert,
}

const (
	resolveAction  = "Resolve"
	deliveryAction = "Delivery"
)

type Client struct {
	Store     store.Store
	Directory directory.Resolver
	Outbound  *Publisher
	Events    *Publisher
	ServerID  string
	Channels  []string
	// Probe reports broker health for Status. Nil means always healthy.
	Probe  func(ctx context.Context) error
	Logger zerolog.Logger
	Now    func() time.Time
}

type failedRecipient struct {
	recipient model.Recipient
	exception model.ProcessingException
}

// SendMessage resolves the recipients of msg, stores it and hands the
// deliverable part to the outbound topic. Recipients that cannot be resolved
// are reported as EXCEPTION events and recorded in the delivery history.
func (c *Client) SendMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if err := msg.Validate(); err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg = msg.Clone()
	now := c.now()
	if msg.Header.Created == nil {
		created := now
		msg.Header.Created = &created
	}

	deliverable, failed, err := c.resolveRecipients(ctx, &msg)
	if err != nil {
		return model.Message{}, err
	}
	for _, f := range failed {
		msg.Header.DeliveryStatuses = append(msg.Header.DeliveryStatuses, model.DeliveryStatus{
			ID:          uuid.NewString(),
			RecipientID: f.recipient.RecipientID,
			Action:      resolveAction,
			Status:      f.exception.Fault,
			Timestamp:   now,
		})
	}

	if err := c.Store.SaveMessage(ctx, msg); err != nil {
		return model.Message{}, fmt.Errorf("save message: %w", err)
	}

	if len(deliverable) > 0 {
		out := msg.Clone()
		out.Header.Recipients = deliverable
		if err := c.Outbound.Publish(ctx, msg.ID(), out); err != nil {
			c.markUnsent(ctx, msg.ID(), deliverable, err)
			return model.Message{}, fmt.Errorf("publish message: %w", err)
		}
	}
	messagesSent.WithLabelValues(msg.Kind.String()).Inc()

	for _, f := range failed {
		ev := ExceptionEvent(msg, msg.Header.Sender, f.recipient.DeliveryAddress.Physical, f.exception, c.ServerID)
		if err := c.Events.PublishEvent(ctx, ev); err != nil {
			c.Logger.Error().Err(err).Str("message_id", msg.ID()).Msg("failed to publish exception")
		}
	}

	if msg.IsAlert() {
		if err := c.Events.PublishEvent(ctx, MessageEvent(gateway.EventAlertNew, msg, c.ServerID)); err != nil {
			return msg, fmt.Errorf("publish alert: %w", err)
		}
	}

	c.Logger.Info().
		Str("message_id", msg.ID()).
		Str("kind", msg.Kind.String()).
		Int("deliverable", len(deliverable)).
		Int("failed", len(failed)).
		Msg("message accepted")
	return msg, nil
}

// markUnsent records a Delivery failure for each recipient whose copy never
// reached the outbound topic, so the stored message does not look in flight.
func (c *Client) markUnsent(ctx context.Context, id string, recipients []model.Recipient, cause error) {
	now := c.now()
	_, err := c.Store.UpdateMessage(ctx, id, func(m model.Message) (model.Message, error) {
		for _, r := range recipients {
			m = m.WithDeliveryStatus(model.DeliveryStatus{
				ID:          uuid.NewString(),
				RecipientID: r.RecipientID,
				Action:      deliveryAction,
				Status:      "not sent: " + cause.Error(),
				Timestamp:   now,
			})
		}
		return m, nil
	})
	if err != nil {
		c.Logger.Error().Err(err).Str("message_id", id).Msg("failed to record unsent message")
	}
}

// resolveRecipients replaces each recipient's user name with the address the
// directory holds for the recipient's service. Group chats are passed through
// untouched and alert recipients only need to be known users.
func (c *Client) resolveRecipients(ctx context.Context, msg *model.Message) ([]model.Recipient, []failedRecipient, error) {
	var (
		deliverable []model.Recipient
		failed      []failedRecipient
	)
	for i := range msg.Header.Recipients {
		r := msg.Header.Recipients[i]
		svc, addr := r.ServiceID(), r.Address()

		if svc == model.ServiceChat && strings.HasPrefix(addr, model.GroupChatPrefix) {
			deliverable = append(deliverable, r)
			continue
		}

		info, err := c.Directory.ResolveUserContactInfo(ctx, addr)
		if errors.Is(err, directory.ErrUnknownUser) {
			failed = append(failed, c.failure(msg, r, model.ExceptionUnknownUser, "Unknown User: "+addr, addr))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolve recipient %s: %w", r.RecipientID, err)
		}

		if svc == model.ServiceAlert {
			deliverable = append(deliverable, r)
			continue
		}

		pa, ok := info.Address(svc)
		if !ok {
			failed = append(failed, c.failure(msg, r, model.ExceptionUnknownService,
				fmt.Sprintf("Unknown Address for service '%s'", svc), r.RecipientID))
			continue
		}
		r.DeliveryAddress.Physical = model.NewPhysicalAddress(svc, pa.Address)
		msg.Header.Recipients[i] = r
		deliverable = append(deliverable, r)
	}
	return deliverable, failed, nil
}

func (c *Client) failure(msg *model.Message, r model.Recipient, typ model.ExceptionType, fault, detail string) failedRecipient {
	resolutionFailures.WithLabelValues(typ.String()).Inc()
	return failedRecipient{
		recipient: r,
		exception: model.ProcessingException{
			ExceptionID:         uuid.NewString(),
			GeneratingMessageID: msg.ID(),
			Fault:               fault,
			TypeSpecificContext: detail,
			IssuingService:      r.ServiceID(),
			Type:                typ,
		},
	}
}

func (c *Client) Message(ctx context.Context, id string) (model.Message, error) {
	return c.Store.Message(ctx, id)
}

// Messages lists stored messages, optionally restricted to one kind.
func (c *Client) Messages(ctx context.Context, kind *model.Kind) ([]model.Message, error) {
	all, err := c.Store.Messages(ctx)
	if err != nil {
		return nil, err
	}
	if kind == nil {
		return all, nil
	}
	out := make([]model.Message, 0, len(all))
	for _, m := range all {
		if m.Kind == *kind {
			out = append(out, m)
		}
	}
	return out, nil
}

// QueryMessages returns summaries: plain messages carrying only the header and
// the subject as a text body.
func (c *Client) QueryMessages(ctx context.Context, kind *model.Kind) ([]model.Message, error) {
	msgs, err := c.Messages(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		s := m.Clone()
		s.Kind = model.KindSimple
		s.Alert = nil
		s.Parts = []model.Part{{Content: m.Header.Subject, MimeType: "text/plain"}}
		out = append(out, s)
	}
	return out, nil
}

// UpdateAlert moves an alert to status. Retracted and expired alerts are final.
func (c *Client) UpdateAlert(ctx context.Context, id string, status model.AlertStatus) (model.Message, error) {
	updated, err := c.Store.UpdateMessage(ctx, id, func(m model.Message) (model.Message, error) {
		if !m.IsAlert() {
			return m, fmt.Errorf("%s: %w", id, ErrNotAlert)
		}
		switch m.Alert.Status {
		case model.AlertRetracted, model.AlertExpired:
			return m, fmt.Errorf("%w: %s alert cannot change", ErrInvalidState, m.Alert.Status)
		}
		return m.WithAlertStatus(status), nil
	})
	if err != nil {
		return model.Message{}, err
	}
	if err := c.Events.PublishEvent(ctx, MessageEvent(gateway.EventAlertUpdated, updated, c.ServerID)); err != nil {
		return updated, fmt.Errorf("publish alert update: %w", err)
	}
	return updated, nil
}

// CancelMessage retracts a pending alert. Cancelling an alert that is already
// retracted does nothing.
func (c *Client) CancelMessage(ctx context.Context, id string) error {
	updated, err := c.Store.UpdateMessage(ctx, id, func(m model.Message) (model.Message, error) {
		if !m.IsAlert() {
			return m, fmt.Errorf("%s: %w", id, ErrNotAlert)
		}
		switch m.Alert.Status {
		case model.AlertNew, model.AlertPending:
			return m.WithAlertStatus(model.AlertRetracted), nil
		case model.AlertRetracted:
			return m, errAlreadyRetracted
		default:
			return m, fmt.Errorf("%w: %s alert cannot be cancelled", ErrInvalidState, m.Alert.Status)
		}
	})
	if errors.Is(err, errAlreadyRetracted) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.Events.PublishEvent(ctx, MessageEvent(gateway.EventAlertCanceled, updated, c.ServerID)); err != nil {
		return fmt.Errorf("publish alert cancel: %w", err)
	}
	return nil
}

func (c *Client) DiscoverChannels(context.Context) []model.ServiceInfo {
	channels := c.channels()
	out := make([]model.ServiceInfo, 0, len(channels))
	for _, ch := range channels {
		out = append(out, model.ServiceInfo{Name: ch})
	}
	return out
}

// Status reports every channel as supported and available while the store
// and the broker respond.
func (c *Client) Status(ctx context.Context) []model.Status {
	healthy := c.health(ctx) == nil
	channels := c.channels()
	out := make([]model.Status, 0, len(channels))
	for _, ch := range channels {
		out = append(out, model.Status{Capability: ch, Available: healthy, Supported: true})
	}
	return out
}

func (c *Client) health(ctx context.Context) error {
	if p, ok := c.Store.(store.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			c.Logger.Warn().Err(err).Msg("store unavailable")
			return err
		}
	}
	if c.Probe != nil {
		if err := c.Probe(ctx); err != nil {
			c.Logger.Warn().Err(err).Msg("broker unavailable")
			return err
		}
	}
	return nil
}

func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	return c.Store.Conversations(ctx)
}

func (c *Client) Conversation(ctx context.Context, id string) (model.ConversationInfo, error) {
	return c.Store.ConversationInfo(ctx, id)
}

func (c *Client) CreateConversation(ctx context.Context, id string) (model.Conversation, error) {
	return c.Store.CreateConversation(ctx, model.Conversation{ConversationID: id})
}

func (c *Client) channels() []string {
	if len(c.Channels) == 0 {
		return DefaultChannels
	}
	return c.Channels
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}
