package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for projectID (GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) settingDoc(key string) *firestore.DocumentRef {
	return s.client.Collection("settings").Doc(key)
}

func (s *Store) eventsCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.client.Collection("sessions").Doc(string(sessionID)).Collection("events")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type settingDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type eventDoc struct {
	Type      string    `firestore:"type"`
	Content   string    `firestore:"content"`
	Context   string    `firestore:"context"`
	CreatedAt time.Time `firestore:"created_at"`
}

// ─────────────────────────────────────────
// KVStore implementation
// ─────────────────────────────────────────

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	snap, err := s.settingDoc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("firestore Get: %w", err)
	}

	var doc settingDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", false, fmt.Errorf("firestore Get decode: %w", err)
	}
	return doc.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.settingDoc(key).Set(ctx, settingDoc{Value: value, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("firestore Set: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// ChronicleStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendEvent(ctx context.Context, ev *domain.GameEvent) error {
	if ev == nil {
		return nil
	}

	doc := eventDoc{
		Type:      string(ev.Type),
		Content:   ev.Content,
		Context:   ev.Context,
		CreatedAt: ev.At,
	}

	_, err := s.eventsCol(ev.SessionID).Doc(string(ev.ID)).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore AppendEvent: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.GameEvent, error) {
	q := s.eventsCol(sessionID).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.GameEvent
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListEvents: %w", err)
		}

		var doc eventDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode eventDoc: %w", err)
		}

		out = append(out, &domain.GameEvent{
			ID:        domain.EventID(snap.Ref.ID),
			SessionID: sessionID,
			At:        doc.CreatedAt,
			Type:      domain.EventType(doc.Type),
			Content:   doc.Content,
			Context:   doc.Context,
		})
	}

	// newest first from the query, callers expect oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []*domain.GameEvent{}
	}
	return out, nil
}
