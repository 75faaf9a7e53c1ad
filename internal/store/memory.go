package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/example/ucs-gateway/internal/model"
)

// Memory keeps everything in process. Values are cloned on the way in and out.
type Memory struct {
	mu            sync.RWMutex
	messages      map[string]model.Message
	order         []string
	conversations map[string]struct{}
	convOrder     []string
}

func NewMemory() *Memory {
	return &Memory{
		messages:      make(map[string]model.Message),
		conversations: make(map[string]struct{}),
	}
}

func (m *Memory) SaveMessage(_ context.Context, msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := msg.ID()
	if _, ok := m.messages[id]; ok {
		return fmt.Errorf("message %s: %w", id, ErrDuplicate)
	}
	m.messages[id] = msg.Clone()
	m.order = append(m.order, id)
	if cid := msg.Header.RelatedConversationID; cid != "" {
		m.ensureConversation(cid)
	}
	return nil
}

func (m *Memory) Message(_ context.Context, id string) (model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return msg.Clone(), nil
}

func (m *Memory) Messages(context.Context) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Message, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.messages[id].Clone())
	}
	return out, nil
}

func (m *Memory) UpdateMessage(_ context.Context, id string, fn Mutation) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.messages[id]
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	next, err := fn(current.Clone())
	if err != nil {
		return model.Message{}, err
	}
	if next.ID() != id {
		return model.Message{}, fmt.Errorf("update of %s changed the message id", id)
	}
	m.messages[id] = next.Clone()
	return next, nil
}

func (m *Memory) CreateConversation(_ context.Context, c model.Conversation) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ConversationID == "" {
		c.ConversationID = uuid.NewString()
	}
	if _, ok := m.conversations[c.ConversationID]; ok {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", c.ConversationID, ErrDuplicate)
	}
	m.ensureConversation(c.ConversationID)
	return c, nil
}

func (m *Memory) Conversations(context.Context) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Conversation, 0, len(m.convOrder))
	for _, id := range m.convOrder {
		out = append(out, model.Conversation{ConversationID: id})
	}
	return out, nil
}

func (m *Memory) ConversationInfo(_ context.Context, id string) (model.ConversationInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.conversations[id]; !ok {
		return model.ConversationInfo{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	info := model.ConversationInfo{
		Conversation: model.Conversation{ConversationID: id},
		Messages:     []string{},
	}
	for _, mid := range m.order {
		if m.messages[mid].Header.RelatedConversationID == id {
			info.Messages = append(info.Messages, mid)
		}
	}
	return info, nil
}

func (m *Memory) ensureConversation(id string) {
	if _, ok := m.conversations[id]; ok {
		return
	}
	m.conversations[id] = struct{}{}
	m.convOrder = append(m.convOrder, id)
}

func (m *Memory) Ping(context.Context) error { return nil }
