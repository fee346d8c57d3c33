package memory_test

import (
	"context"
	"testing"

	"github.com/PabloGalante/tavern-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/tavern-agent/internal/domain"
)

func TestKVStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKVStore()

	if _, ok, err := s.Get(ctx, "apiKey"); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "apiKey", "sk-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "apiKey")
	if err != nil || !ok || v != "sk-1" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
}

func TestChronicleStoreListsLastEventsInOrder(t *testing.T) {
	ctx := context.Background()
	s := memory.NewChronicleStore()

	for _, c := range []string{"a", "b", "c"} {
		if err := s.AppendEvent(ctx, &domain.GameEvent{SessionID: "s1", Type: domain.EventAction, Content: c}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	_ = s.AppendEvent(ctx, &domain.GameEvent{SessionID: "s2", Content: "other"})

	got, err := s.ListEvents(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[0].ID == "" {
		t.Fatal("expected an assigned id")
	}

	all, _ := s.ListEvents(ctx, "s1", 0)
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	none, _ := s.ListEvents(ctx, "missing", 5)
	if len(none) != 0 {
		t.Fatalf("expected no events, got %d", len(none))
	}
}
