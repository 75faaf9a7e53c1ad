package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/ucs-gateway/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS ucs_conversations (
id TEXT PRIMARY KEY,
created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS ucs_messages (
id TEXT PRIMARY KEY,
conversation_id TEXT,
kind TEXT NOT NULL,
document JSONB NOT NULL,
created_at TIMESTAMPTZ NOT NULL,
updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ucs_messages_conversation_idx ON ucs_messages (conversation_id, created_at);
`

const insertMessage = `
INSERT INTO ucs_messages (id, conversation_id, kind, document, created_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5)
ON CONFLICT (id) DO NOTHING
`

const insertConversation = `
INSERT INTO ucs_conversations (id) VALUES ($1)
ON CONFLICT (id) DO NOTHING
`

const selectMessage = `SELECT document FROM ucs_messages WHERE id = $1`

const selectMessageForUpdate = `SELECT document FROM ucs_messages WHERE id = $1 FOR UPDATE`

const selectMessages = `SELECT document FROM ucs_messages ORDER BY created_at, id`

const updateMessage = `
UPDATE ucs_messages SET document = $2, kind = $3, updated_at = now()
WHERE id = $1
`

const selectConversations = `SELECT id FROM ucs_conversations ORDER BY created_at, id`

const selectConversationMessages = `
SELECT id FROM ucs_messages WHERE conversation_id = $1 ORDER BY created_at, id
`

type Postgres struct {
	pool *pgxpool.Pool
}

var ErrNotConfigured = errors.New("postgres store requires a non-nil pool")

func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) SaveMessage(ctx context.Context, msg model.Message) error {
	doc, err := model.Marshal(msg)
	if err != nil {
		return err
	}
	created := time.Now().UTC()
	if msg.Header.Created != nil {
		created = *msg.Header.Created
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if cid := msg.Header.RelatedConversationID; cid != "" {
			if _, err := tx.Exec(ctx, insertConversation, cid); err != nil {
				return fmt.Errorf("ensure conversation: %w", err)
			}
		}
		tag, err := tx.Exec(ctx, insertMessage, msg.ID(), msg.Header.RelatedConversationID, msg.Kind.String(), doc, created)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("message %s: %w", msg.ID(), ErrDuplicate)
		}
		return nil
	})
}

func (p *Postgres) Message(ctx context.Context, id string) (model.Message, error) {
	return scanMessage(p.pool.QueryRow(ctx, selectMessage, id), id)
}

func (p *Postgres) Messages(ctx context.Context) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx, selectMessages)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg, err := model.Unmarshal(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateMessage(ctx context.Context, id string, fn Mutation) (model.Message, error) {
	var updated model.Message
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		current, err := scanMessage(tx.QueryRow(ctx, selectMessageForUpdate, id), id)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next.ID() != id {
			return fmt.Errorf("update of %s changed the message id", id)
		}
		doc, err := model.Marshal(next)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, updateMessage, id, doc, next.Kind.String()); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return model.Message{}, err
	}
	return updated, nil
}

func (p *Postgres) CreateConversation(ctx context.Context, c model.Conversation) (model.Conversation, error) {
	if c.ConversationID == "" {
		c.ConversationID = uuid.NewString()
	}
	tag, err := p.pool.Exec(ctx, insertConversation, c.ConversationID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", c.ConversationID, ErrDuplicate)
	}
	return c, nil
}

func (p *Postgres) Conversations(ctx context.Context) ([]model.Conversation, error) {
	ids, err := p.collectIDs(ctx, selectConversations)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]model.Conversation, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Conversation{ConversationID: id})
	}
	return out, nil
}

func (p *Postgres) ConversationInfo(ctx context.Context, id string) (model.ConversationInfo, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ucs_conversations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return model.ConversationInfo{}, fmt.Errorf("lookup conversation: %w", err)
	}
	if !exists {
		return model.ConversationInfo{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	ids, err := p.collectIDs(ctx, selectConversationMessages, id)
	if err != nil {
		return model.ConversationInfo{}, fmt.Errorf("list conversation messages: %w", err)
	}
	return model.ConversationInfo{
		Conversation: model.Conversation{ConversationID: id},
		Messages:     ids,
	}, nil
}

func (p *Postgres) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func scanMessage(row pgx.Row, id string) (model.Message, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return model.Message{}, fmt.Errorf("fetch message: %w", err)
	}
	return model.Unmarshal(doc)
}

// Ping is used by the status command to report storage health.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
