package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// ChronicleStore is an in-memory implementation of domain.ChronicleStore.
type ChronicleStore struct {
	mu        sync.RWMutex
	events    map[domain.EventID]*domain.GameEvent
	bySession map[domain.SessionID][]domain.EventID
}

func NewChronicleStore() *ChronicleStore {
	return &ChronicleStore{
		events:    make(map[domain.EventID]*domain.GameEvent),
		bySession: make(map[domain.SessionID][]domain.EventID),
	}
}

// AppendEvent saves ev, assigning an id when it has none.
func (s *ChronicleStore) AppendEvent(_ context.Context, ev *domain.GameEvent) error {
	if ev == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = domain.EventID(uuid.NewString())
	}

	s.events[ev.ID] = ev
	s.bySession[ev.SessionID] = append(s.bySession[ev.SessionID], ev.ID)
	return nil
}

// ListEvents returns the last limit events of a session, oldest first.
// limit <= 0 returns all of them.
func (s *ChronicleStore) ListEvents(_ context.Context, sessionID domain.SessionID, limit int) ([]*domain.GameEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySession[sessionID]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}

	selected := ids[len(ids)-limit:]
	out := make([]*domain.GameEvent, 0, len(selected))
	for _, id := range selected {
		if ev, ok := s.events[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}
