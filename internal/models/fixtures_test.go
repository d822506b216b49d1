package models

import (
	"context"
	"sync"

	"github.com/babblebot-server/server-sub000/internal/core"
)

// statements records query hook events.
type statements struct {
	mu     sync.Mutex
	events []core.QueryEvent
}

func (s *statements) hook(_ context.Context, e core.QueryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *statements) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *statements) all() []core.QueryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.QueryEvent(nil), s.events...)
}

func (s *statements) operations(since int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []string
	for _, e := range s.events[since:] {
		ops = append(ops, e.Operation)
	}
	return ops
}
