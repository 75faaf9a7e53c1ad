package gateway

import (
	"context"
	"sync"
)

// Conn is one live client session.
type Conn interface {
	ID() string
	Open() bool
	Send(ctx context.Context, frame []byte) error
}

// Sessions is the registry of live sessions. Connect and disconnect mutate it
// from per-connection goroutines while broadcasts iterate over snapshots.
type Sessions struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewSessions() *Sessions {
	return &Sessions{conns: make(map[string]Conn)}
}

func (s *Sessions) Add(c Conn) {
	s.mu.Lock()
	s.conns[c.ID()] = c
	s.mu.Unlock()
	openSessions.Inc()
}

func (s *Sessions) Remove(id string) {
	s.mu.Lock()
	_, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()
	if ok {
		openSessions.Dec()
	}
}

func (s *Sessions) Get(id string) (Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Snapshot copies the current sessions so callers can do I/O without holding the lock.
func (s *Sessions) Snapshot() []Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}
