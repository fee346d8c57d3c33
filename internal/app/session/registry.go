package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// Registry keeps the live sessions of the process. Every session it creates
// shares the same collaborators.
type Registry struct {
	opts Options

	mu       sync.RWMutex
	sessions map[domain.SessionID]*Session
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		sessions: make(map[domain.SessionID]*Session),
	}
}

// Create builds a new session with a fresh id.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	opts := r.opts
	opts.ID = domain.SessionID(uuid.NewString())

	s, err := New(ctx, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s, nil
}

func (r *Registry) Get(id domain.SessionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.NewErrorf(domain.ErrNotFound, nil, "session %s", id)
	}
	return s, nil
}
