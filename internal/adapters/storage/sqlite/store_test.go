package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "tavern.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestKVUpsert(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, ok, err := store.Get(ctx, "apiKey"); err != nil || ok {
		t.Fatalf("get missing: ok=%v err=%v", ok, err)
	}
	for _, v := range []string{"sk-1", "sk-2"} {
		if err := store.Set(ctx, "apiKey", v); err != nil {
			t.Fatalf("set %s: %v", v, err)
		}
	}
	v, ok, err := store.Get(ctx, "apiKey")
	if err != nil || !ok || v != "sk-2" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 4; i++ {
		ev := &domain.GameEvent{
			ID:        domain.EventID(fmt.Sprintf("ev-%d", i)),
			SessionID: "s1",
			At:        at,
			Type:      domain.EventAction,
			Content:   fmt.Sprintf("e%d", i),
			Context:   "ctx",
		}
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.ListEvents(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Content != "e2" || got[1].Content != "e3" {
		t.Fatalf("unexpected events: %+v", got)
	}
	if !got[0].At.Equal(at) || got[0].Context != "ctx" || got[0].Type != domain.EventAction {
		t.Fatalf("fields not preserved: %+v", got[0])
	}

	all, err := store.ListEvents(ctx, "s1", 0)
	if err != nil || len(all) != 4 {
		t.Fatalf("list all: %d %v", len(all), err)
	}
}
