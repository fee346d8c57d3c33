package supabase

import (
	"context"
	"fmt"
	"strings"

	supa "github.com/supabase-community/supabase-go"
)

// DefaultTable is the table used when none is configured. It needs a text
// primary key column "key" and a text column "value".
const DefaultTable = "kv"

// Store is a domain.KVStore backed by a Supabase (PostgREST) table.
type Store struct {
	client *supa.Client
	table  string
}

type kvRow struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewStore connects to the Supabase project at url with key.
func NewStore(url, key, table string) (*Store, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	if table == "" {
		table = DefaultTable
	}

	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &Store{client: client, table: table}, nil
}

// Get reads one row. The PostgREST client has no context support, so ctx is
// only checked before the call.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var rows []kvRow
	_, err := s.client.From(s.table).
		Select("key,value", "", false).
		Eq("key", key).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return "", false, fmt.Errorf("supabase Get: %w", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var inserted []kvRow
	_, err := s.client.From(s.table).
		Insert(kvRow{Key: key, Value: value}, true, "key", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return fmt.Errorf("supabase Set: %w", err)
	}
	return nil
}
