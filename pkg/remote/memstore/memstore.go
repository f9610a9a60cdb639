// Package memstore is an in-process remote.Store used by tests and by the CLI
// when FIELDSYNC_REMOTE=memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/httprunner/FieldSync/pkg/remote"
	"github.com/pkg/errors"
)

// Record is a stored remote record.
type Record struct {
	ID     string
	Fields map[string]any
}

// Hooks inject behavior before each operation; a non-nil error aborts it.
type Hooks struct {
	BeforeExists func(ctx context.Context, collectionPath, field, value string) error
	BeforeInsert func(ctx context.Context, collectionPath string, payload map[string]any) error
	BeforeUpdate func(ctx context.Context, recordPath string, fields map[string]any) error
}

// Store keeps records per collection path in insertion order.
type Store struct {
	mu          sync.Mutex
	collections map[string][]*Record
	seq         int64
	hooks       Hooks

	inserts int
}

// New returns an empty store.
func New() *Store {
	return &Store{collections: make(map[string][]*Record)}
}

// SetHooks replaces the injected hooks.
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

func (s *Store) Exists(ctx context.Context, collectionPath, field, value string) (bool, error) {
	n, err := s.Count(ctx, collectionPath, field, value)
	return n > 0, err
}

// Count returns how many records under collectionPath have field == value.
func (s *Store) Count(ctx context.Context, collectionPath, field, value string) (int, error) {
	hook := s.currentHooks().BeforeExists
	if hook != nil {
		if err := hook(ctx, collectionPath, field, value); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.collections[remote.CleanPath(collectionPath)] {
		if v, ok := rec.Fields[field]; ok && v != nil && fmt.Sprint(v) == value {
			n++
		}
	}
	return n, nil
}

func (s *Store) Insert(ctx context.Context, collectionPath string, payload map[string]any) (string, error) {
	hook := s.currentHooks().BeforeInsert
	if hook != nil {
		if err := hook(ctx, collectionPath, payload); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := remote.CleanPath(collectionPath)
	if path == "" {
		return "", errors.New("memstore: empty collection path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("-mem%08d", s.seq)
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		fields[k] = v
	}
	s.collections[path] = append(s.collections[path], &Record{ID: id, Fields: fields})
	s.inserts++
	return id, nil
}

func (s *Store) Update(ctx context.Context, recordPath string, fields map[string]any) error {
	hook := s.currentHooks().BeforeUpdate
	if hook != nil {
		if err := hook(ctx, recordPath, fields); err != nil {
			return err
		}
	}
	collectionPath, id, err := remote.SplitRecordPath(recordPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.collections[collectionPath] {
		if rec.ID != id {
			continue
		}
		for k, v := range fields {
			rec.Fields[k] = v
		}
		return nil
	}
	return errors.Wrapf(remote.ErrNotFound, "memstore: %s", recordPath)
}

// Records returns a copy of the records under collectionPath.
func (s *Store) Records(collectionPath string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.collections[remote.CleanPath(collectionPath)]
	out := make([]Record, 0, len(src))
	for _, rec := range src {
		fields := make(map[string]any, len(rec.Fields))
		for k, v := range rec.Fields {
			fields[k] = v
		}
		out = append(out, Record{ID: rec.ID, Fields: fields})
	}
	return out
}

// Collections lists the collection paths that hold records.
func (s *Store) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.collections))
	for k := range s.collections {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Inserts returns the number of successful inserts so far.
func (s *Store) Inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

func (s *Store) currentHooks() Hooks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks
}
