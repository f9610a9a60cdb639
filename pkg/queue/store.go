// Package queue persists records that have not yet been confirmed by the
// remote store. The whole queue lives in one key of a kv.Store as a JSON array
// and every mutation is written through before returning.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/httprunner/FieldSync/pkg/kv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultKey is the kv key holding the queue blob.
const DefaultKey = "fieldsync.pending_records"

var (
	ErrEmptyLocalID    = errors.New("queue: record localId is empty")
	ErrEmptyTargetPath = errors.New("queue: record targetPath is empty")
)

// Store is the durable, ordered list of pending records. Operations on one
// Store are serialized; callers sharing a kv key across processes are not
// supported.
type Store struct {
	kv  kv.Store
	key string

	mu  sync.Mutex
	now func() time.Time
}

// NewStore returns a queue persisted under key in backend (DefaultKey when empty).
func NewStore(backend kv.Store, key string) (*Store, error) {
	if backend == nil {
		return nil, errors.New("queue: kv store is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultKey
	}
	return &Store{kv: backend, key: key, now: time.Now}, nil
}

// Key returns the kv key of the queue blob.
func (s *Store) Key() string { return s.key }

// Append queues rec unless a record with the same localId is already queued.
// It reports whether rec was added.
func (s *Store) Append(ctx context.Context, rec PendingRecord) (added bool, err error) {
	if err := rec.validate(); err != nil {
		return false, err
	}
	rec.Status = StatusPending
	err = s.Update(ctx, func(current []PendingRecord) []PendingRecord {
		for _, existing := range current {
			if existing.LocalID == rec.LocalID {
				return current
			}
		}
		added = true
		return append(current, rec)
	})
	if err != nil {
		return false, err
	}
	if !added {
		log.Info().Str("local_id", rec.LocalID).Msg("queue: duplicate append ignored")
	}
	return added, nil
}

// LoadAll returns the queued records in insertion order.
func (s *Store) LoadAll(ctx context.Context) ([]PendingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Len returns the number of queued records.
func (s *Store) Len(ctx context.Context) (int, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// RemoveByLocalID drops the record with localID; absent ids are a no-op.
func (s *Store) RemoveByLocalID(ctx context.Context, localID string) error {
	return s.Update(ctx, func(current []PendingRecord) []PendingRecord {
		return filterOut(current, map[string]struct{}{localID: {}})
	})
}

// RemoveLocalIDs drops every record whose localId is in ids in one write.
func (s *Store) RemoveLocalIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return s.Update(ctx, func(current []PendingRecord) []PendingRecord {
		return filterOut(current, set)
	})
}

// ReplaceAll overwrites the queue with records in a single write.
func (s *Store) ReplaceAll(ctx context.Context, records []PendingRecord) error {
	for _, rec := range records {
		if err := rec.validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, dedupe(records))
}

// Update applies fn to the current queue and persists the result in one
// write while holding the store lock.
func (s *Store) Update(ctx context.Context, fn func(current []PendingRecord) []PendingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	next := fn(current)
	return s.saveLocked(ctx, dedupe(next))
}

// Quarantined lists the kv keys holding blobs that failed to decode.
func (s *Store) Quarantined(ctx context.Context) ([]string, error) {
	lister, ok := s.kv.(kv.Lister)
	if !ok {
		return nil, nil
	}
	return lister.Keys(ctx, s.quarantinePrefix())
}

func (s *Store) loadLocked(ctx context.Context) ([]PendingRecord, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return []PendingRecord{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "queue: read blob failed")
	}
	if strings.TrimSpace(raw) == "" {
		return []PendingRecord{}, nil
	}
	records, decodeErr := decodeBlob(raw)
	if decodeErr != nil {
		// The blob is the only copy of unconfirmed writes: park it under a
		// separate key before anything can overwrite it.
		qkey := fmt.Sprintf("%s%d", s.quarantinePrefix(), s.now().UnixMilli())
		if err := s.kv.Set(ctx, qkey, raw); err != nil {
			return nil, errors.Wrap(err, "queue: quarantine corrupt blob failed")
		}
		if err := s.kv.Remove(ctx, s.key); err != nil {
			return nil, errors.Wrap(err, "queue: clear corrupt blob failed")
		}
		log.Error().Err(decodeErr).
			Str("key", s.key).
			Str("quarantine_key", qkey).
			Int("bytes", len(raw)).
			Msg("queue: corrupt blob quarantined, treating queue as empty")
		return []PendingRecord{}, nil
	}
	out := make([]PendingRecord, 0, len(records))
	for _, rec := range records {
		if rec.validate() != nil {
			log.Warn().Str("local_id", rec.LocalID).Str("target_path", rec.TargetPath).
				Msg("queue: skipping invalid stored record")
			continue
		}
		rec.Status = StatusPending
		out = append(out, rec)
	}
	return out, nil
}

// decodeBlob keeps payload numbers as json.Number so integer ids and
// counters above 2^53 leave the queue exactly as they entered it.
func decodeBlob(raw string) ([]PendingRecord, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var records []PendingRecord
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after queue array")
	}
	return records, nil
}

func (s *Store) saveLocked(ctx context.Context, records []PendingRecord) error {
	if records == nil {
		records = []PendingRecord{}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(err, "queue: marshal records failed")
	}
	if err := s.kv.Set(ctx, s.key, string(blob)); err != nil {
		return errors.Wrap(err, "queue: write blob failed")
	}
	return nil
}

func (s *Store) quarantinePrefix() string {
	return s.key + ".corrupt."
}

func filterOut(records []PendingRecord, ids map[string]struct{}) []PendingRecord {
	out := make([]PendingRecord, 0, len(records))
	for _, rec := range records {
		if _, drop := ids[rec.LocalID]; drop {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// dedupe keeps the first occurrence of each localId.
func dedupe(records []PendingRecord) []PendingRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]PendingRecord, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.LocalID]; dup {
			continue
		}
		seen[rec.LocalID] = struct{}{}
		out = append(out, rec)
	}
	return out
}
