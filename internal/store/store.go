// Package store persists messages, their delivery history and conversations.
package store

import (
	"context"
	"errors"

	"github.com/example/ucs-gateway/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Mutation derives the next version of a stored message.
type Mutation func(model.Message) (model.Message, error)

type Store interface {
	SaveMessage(ctx context.Context, msg model.Message) error
	Message(ctx context.Context, id string) (model.Message, error)
	Messages(ctx context.Context) ([]model.Message, error)
	// UpdateMessage applies fn to the stored message atomically and returns the
	// saved result. An error from fn aborts the update.
	UpdateMessage(ctx context.Context, id string, fn Mutation) (model.Message, error)

	CreateConversation(ctx context.Context, c model.Conversation) (model.Conversation, error)
	Conversations(ctx context.Context) ([]model.Conversation, error)
	ConversationInfo(ctx context.Context, id string) (model.ConversationInfo, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
