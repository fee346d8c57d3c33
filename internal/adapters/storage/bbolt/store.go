package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

const (
	kvBucket     = "kv"
	eventsBucket = "events"
)

// Store is a BoltDB-backed domain.KVStore and domain.ChronicleStore.
// Events live in one nested bucket per session keyed by sequence number.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB store at path, creating it if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var (
		value string
		ok    bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kvBucket))
		if bucket == nil {
			return fmt.Errorf("kv bucket is missing")
		}
		if v := bucket.Get([]byte(key)); v != nil {
			value, ok = string(v), true
		}
		return nil
	})
	return value, ok, err
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kvBucket))
		if bucket == nil {
			return fmt.Errorf("kv bucket is missing")
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (s *Store) AppendEvent(ctx context.Context, ev *domain.GameEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev == nil {
		return nil
	}
	if strings.TrimSpace(string(ev.SessionID)) == "" {
		return fmt.Errorf("session id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(eventsBucket))
		if root == nil {
			return fmt.Errorf("events bucket is missing")
		}
		bucket, err := root.CreateBucketIfNotExists([]byte(ev.SessionID))
		if err != nil {
			return fmt.Errorf("create session bucket: %w", err)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next event sequence: %w", err)
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return bucket.Put(seqKey(seq), payload)
	})
}

// ListEvents walks the session bucket backwards and returns the last limit
// events oldest first. limit <= 0 returns all.
func (s *Store) ListEvents(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.GameEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*domain.GameEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(eventsBucket))
		if root == nil {
			return fmt.Errorf("events bucket is missing")
		}
		bucket := root.Bucket([]byte(sessionID))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var ev domain.GameEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			out = append(out, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []*domain.GameEvent{}
	}
	return out, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{kvBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
