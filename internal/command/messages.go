package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/model"
	"github.com/example/ucs-gateway/internal/render"
)

type recipientParam struct {
	ID   string `json:"id"`
	To   string `json:"to"`
	Type string `json:"type"`
}

type partParam struct {
	Identifier string `json:"identifier"`
	Content    string `json:"content"`
	MimeType   string `json:"mimeType"`
}

type propertyParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type messageParams struct {
	ConversationID string           `json:"conversationId"`
	From           string           `json:"from"`
	FromType       string           `json:"fromType"`
	Subject        string           `json:"subject"`
	Body           string           `json:"body"`
	Recipients     []recipientParam `json:"recipients"`
	Parts          []partParam      `json:"parts"`
}

func (p messageParams) builder() (*model.Builder, error) {
	if p.From == "" {
		return nil, errors.New("from is required")
	}
	if len(p.Recipients) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	fromType := p.FromType
	if fromType == "" {
		fromType = model.ServiceEmail
	}
	b := model.NewBuilder().
		WithConversationID(p.ConversationID).
		WithSender(model.NewPhysicalAddress(fromType, p.From)).
		WithSubject(p.Subject).
		WithBody(p.Body)
	for i, part := range p.Parts {
		if part.Identifier == "" {
			return nil, fmt.Errorf("parts[%d]: identifier is required", i)
		}
		b.AddPart(model.Part{Identifier: part.Identifier, Content: part.Content, MimeType: part.MimeType})
	}
	return b, nil
}

type newMessage struct {
	sessionBound
	msg model.Message
}

func (c *newMessage) Init(env gateway.Envelope) error {
	var p messageParams
	if err := env.Decode(&p); err != nil {
		return err
	}
	b, err := p.builder()
	if err != nil {
		return err
	}
	for i, r := range p.Recipients {
		if r.To == "" || r.Type == "" {
			return fmt.Errorf("recipients[%d]: to and type are required", i)
		}
		b.AddRecipient(model.NewRecipient(r.ID, r.To, r.Type))
	}
	c.msg, err = b.Build()
	return err
}

func (c *newMessage) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	sent, err := client.SendMessage(ctx, c.msg)
	if err != nil {
		return nil, err
	}
	return map[string]string{"messageId": sent.ID()}, nil
}

type newAlertMessage struct {
	sessionBound
	msg model.Message
}

func (c *newAlertMessage) Init(env gateway.Envelope) error {
	var p struct {
		messageParams
		Status     string          `json:"status"`
		Properties []propertyParam `json:"properties"`
	}
	if err := env.Decode(&p); err != nil {
		return err
	}
	status := model.AlertNew
	if p.Status != "" {
		s, err := model.ParseAlertStatus(p.Status)
		if err != nil {
			return err
		}
		status = s
	}
	b, err := p.builder()
	if err != nil {
		return err
	}
	for i, r := range p.Recipients {
		if r.To == "" {
			return fmt.Errorf("recipients[%d]: to is required", i)
		}
		b.AddRecipient(model.NewRecipient(r.ID, r.To, model.ServiceAlert))
	}
	props := make(map[string]string, len(p.Properties))
	for i, prop := range p.Properties {
		if prop.Key == "" {
			return fmt.Errorf("properties[%d]: key is required", i)
		}
		props[prop.Key] = prop.Value
	}
	c.msg, err = b.AsAlert(status, props).Build()
	return err
}

func (c *newAlertMessage) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	sent, err := client.SendMessage(ctx, c.msg)
	if err != nil {
		return nil, err
	}
	return map[string]string{"messageId": sent.ID()}, nil
}

// listMessages serves getAllMessages and, with summaries set, queryMessages.
type listMessages struct {
	sessionBound
	summaries bool
	kind      *model.Kind
}

func (c *listMessages) Init(env gateway.Envelope) error {
	var p struct {
		Filter *string `json:"typeMessageTypeFilter"`
	}
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.Filter != nil {
		k, err := model.ParseKind(*p.Filter)
		if err != nil {
			return err
		}
		c.kind = &k
	}
	return nil
}

func (c *listMessages) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	if c.summaries {
		msgs, err = client.QueryMessages(ctx, c.kind)
	} else {
		msgs, err = client.Messages(ctx, c.kind)
	}
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, render.Message(m))
	}
	return map[string]any{"messages": out}, nil
}

type messageIDParam struct {
	MessageID string `json:"messageId"`
}

func (p messageIDParam) validate() error {
	if p.MessageID == "" {
		return errors.New("messageId is required")
	}
	return nil
}

type updateMessage struct {
	sessionBound
	id     string
	status model.AlertStatus
}

func (c *updateMessage) Init(env gateway.Envelope) error {
	var p struct {
		messageIDParam
		Status string `json:"status"`
	}
	if err := env.Decode(&p); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	if p.Status == "" {
		return errors.New("status is required")
	}
	status, err := model.ParseAlertStatus(p.Status)
	if err != nil {
		return err
	}
	c.id, c.status = p.MessageID, status
	return nil
}

func (c *updateMessage) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	if _, err := client.UpdateAlert(ctx, c.id, c.status); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

type cancelMessage struct {
	sessionBound
	id string
}

func (c *cancelMessage) Init(env gateway.Envelope) error {
	var p messageIDParam
	if err := env.Decode(&p); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	c.id = p.MessageID
	return nil
}

func (c *cancelMessage) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	if err := client.CancelMessage(ctx, c.id); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}
