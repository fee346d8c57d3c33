package chronicle

import (
	"context"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// DefaultLimit is used when a caller asks for limit <= 0.
const DefaultLimit = 20

// Service reads the game chronicle of a session.
type Service struct {
	store domain.ChronicleStore
}

// NewService creates a chronicle service from a ChronicleStore.
func NewService(store domain.ChronicleStore) *Service {
	return &Service{
		store: store,
	}
}

// Recent returns the last limit events of a session, oldest first.
func (s *Service) Recent(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.GameEvent, error) {
	if s.store == nil {
		// chronicle disabled
		return []*domain.GameEvent{}, nil
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	events, err := s.store.ListEvents(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*domain.GameEvent{}
	}
	return events, nil
}
