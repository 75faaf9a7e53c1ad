package command

import (
	"context"
	"errors"

	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/render"
)

type discoverChannels struct {
	noParams
	sessionBound
}

func (c *discoverChannels) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	channels := client.DiscoverChannels(ctx)
	out := make([]render.ServiceInfoView, 0, len(channels))
	for _, ch := range channels {
		out = append(out, render.ServiceInfo(ch))
	}
	return map[string]any{"channels": out}, nil
}

type getStatus struct {
	noParams
	sessionBound
}

func (c *getStatus) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	statuses := client.Status(ctx)
	out := make([]render.StatusView, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, render.Status(s))
	}
	return map[string]any{"status": out}, nil
}

type queryConversations struct {
	noParams
	sessionBound
}

func (c *queryConversations) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	convs, err := client.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]render.ConversationView, 0, len(convs))
	for _, conv := range convs {
		out = append(out, render.Conversation(conv))
	}
	return map[string]any{"conversations": out}, nil
}

type retrieveConversation struct {
	sessionBound
	id string
}

func (c *retrieveConversation) Init(env gateway.Envelope) error {
	var p struct {
		ConversationID string `json:"conversationId"`
	}
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.ConversationID == "" {
		return errors.New("conversationId is required")
	}
	c.id = p.ConversationID
	return nil
}

func (c *retrieveConversation) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	info, err := client.Conversation(ctx, c.id)
	if err != nil {
		return nil, err
	}
	return render.ConversationInfo(info), nil
}

type createConversation struct {
	sessionBound
	id string
}

func (c *createConversation) Init(env gateway.Envelope) error {
	var p struct {
		ConversationID string `json:"conversationId"`
	}
	if err := env.Decode(&p); err != nil {
		return err
	}
	c.id = p.ConversationID
	return nil
}

func (c *createConversation) Execute(ctx context.Context) (any, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	conv, err := client.CreateConversation(ctx, c.id)
	if err != nil {
		return nil, err
	}
	return map[string]string{"conversationId": conv.ConversationID}, nil
}
