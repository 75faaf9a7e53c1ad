package ucs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/ucs-gateway/internal/directory"
	"github.com/example/ucs-gateway/internal/store"
)

// Session is one live connection to the backend: a client for commands and a
// consumer delivering events until the session is closed.
type Session struct {
	ID        string
	Client    *Client
	CreatedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// StartSession runs consumer in the background until Close.
func StartSession(client *Client, consumer *Consumer, logger zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        uuid.NewString(),
		Client:    client,
		CreatedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	activeSessions.Inc()
	go func() {
		defer close(s.done)
		if err := consumer.Run(ctx); err != nil {
			s.err = err
			logger.Error().Err(err).Str("session_id", s.ID).Msg("event consumer stopped")
		}
	}()
	return s
}

// Close stops the consumer and waits for it to exit.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		activeSessions.Dec()
	})
	return s.err
}

// Backend holds what every session is built from.
type Backend struct {
	Store         store.Store
	Directory     directory.Resolver
	Outbound      *Publisher
	Events        *Publisher
	ReaderFactory func() Reader
	Broadcaster   Broadcaster
	ServerID      string
	Channels      []string
	Probe         func(ctx context.Context) error
	Logger        zerolog.Logger
}

func (b Backend) NewSession() (*Session, error) {
	if b.Store == nil || b.Directory == nil || b.Outbound == nil || b.Events == nil {
		return nil, errors.New("backend requires a store, a directory and both publishers")
	}
	if b.ReaderFactory == nil || b.Broadcaster == nil {
		return nil, errors.New("backend requires a reader factory and a broadcaster")
	}
	client := &Client{
		Store:     b.Store,
		Directory: b.Directory,
		Outbound:  b.Outbound,
		Events:    b.Events,
		ServerID:  b.ServerID,
		Channels:  b.Channels,
		Probe:     b.Probe,
		Logger:    b.Logger,
	}
	consumer := &Consumer{
		ReaderFactory: b.ReaderFactory,
		Store:         b.Store,
		Broadcaster:   b.Broadcaster,
		Logger:        b.Logger,
	}
	return StartSession(client, consumer, b.Logger), nil
}

// Manager owns the single current session. Creating a session disposes of the
// previous one.
type Manager struct {
	mu      sync.Mutex
	current *Session
	factory func() (*Session, error)
	logger  zerolog.Logger
}

func NewManager(factory func() (*Session, error), logger zerolog.Logger) *Manager {
	return &Manager{factory: factory, logger: logger}
}

func (m *Manager) Create(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		if err := m.current.Close(); err != nil {
			m.logger.Warn().Err(err).Str("session_id", m.current.ID).Msg("error disposing previous session")
		}
		m.current = nil
	}
	s, err := m.factory()
	if err != nil {
		return nil, err
	}
	m.current = s
	m.logger.Info().Str("session_id", s.ID).Msg("backend session created")
	return s, nil
}

func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	return m.current, nil
}

func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}
