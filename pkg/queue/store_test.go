package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/httprunner/FieldSync/internal/identity"
	"github.com/httprunner/FieldSync/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id string, km float64) PendingRecord {
	return PendingRecord{
		LocalID:    id,
		TargetPath: "properties/P1/trips",
		Payload:    map[string]any{identity.FieldLocalID: id, "km": km},
		Status:     StatusPending,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func localIDs(records []PendingRecord) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.LocalID)
	}
	return ids
}

func TestAppendKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(kv.NewMemory(), "")
	require.NoError(t, err)
	require.Equal(t, DefaultKey, store.Key())

	for _, id := range []string{"L3", "L1", "L2"} {
		added, err := store.Append(ctx, newRecord(id, 1))
		require.NoError(t, err)
		require.True(t, added)
	}
	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"L3", "L1", "L2"}, localIDs(records))
	for _, rec := range records {
		require.Equal(t, StatusPending, rec.Status)
	}
}

func TestAppendDeduplicatesByLocalID(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(kv.NewMemory(), "q")
	require.NoError(t, err)

	added, err := store.Append(ctx, newRecord("L1", 120))
	require.NoError(t, err)
	require.True(t, added)

	// double tap on "save": same localId, even with a different payload
	added, err = store.Append(ctx, newRecord("L1", 999))
	require.NoError(t, err)
	require.False(t, added)

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, json.Number("120"), records[0].Payload["km"])
}

func TestLoadKeepsLargeIntegersExact(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(kv.NewMemory(), "q")
	require.NoError(t, err)

	rec := newRecord("L1", 0)
	rec.Payload["odometer"] = int64(9007199254740993)
	_, err = store.Append(ctx, rec)
	require.NoError(t, err)

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, json.Number("9007199254740993"), records[0].Payload["odometer"])
}

func TestAppendRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(kv.NewMemory(), "q")
	require.NoError(t, err)

	_, err = store.Append(ctx, PendingRecord{TargetPath: "trips"})
	require.ErrorIs(t, err, ErrEmptyLocalID)
	_, err = store.Append(ctx, PendingRecord{LocalID: "L1"})
	require.ErrorIs(t, err, ErrEmptyTargetPath)
}

func TestDurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.sqlite")

	backend, err := kv.OpenSQLite(path)
	require.NoError(t, err)
	store, err := NewStore(backend, "")
	require.NoError(t, err)
	_, err = store.Append(ctx, newRecord("L1", 120))
	require.NoError(t, err)
	// simulate a kill: no further calls on this store, just drop the handle
	require.NoError(t, backend.Close())

	reopened, err := kv.OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	store, err = NewStore(reopened, "")
	require.NoError(t, err)
	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"L1"}, localIDs(records))
	require.Equal(t, "properties/P1/trips", records[0].TargetPath)
}

func TestRemoveAndReplace(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(kv.NewMemory(), "q")
	require.NoError(t, err)
	for _, id := range []string{"L1", "L2", "L3"} {
		_, err := store.Append(ctx, newRecord(id, 1))
		require.NoError(t, err)
	}

	require.NoError(t, store.RemoveByLocalID(ctx, "L2"))
	require.NoError(t, store.RemoveByLocalID(ctx, "absent"))
	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"L1", "L3"}, localIDs(records))

	require.NoError(t, store.ReplaceAll(ctx, []PendingRecord{newRecord("L9", 1), newRecord("L9", 2)}))
	records, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"L9"}, localIDs(records))

	require.NoError(t, store.RemoveLocalIDs(ctx, []string{"L9"}))
	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCorruptBlobIsQuarantined(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	const garbage = `[{"localId":"L1",` // truncated write
	require.NoError(t, backend.Set(ctx, "q", garbage))

	store, err := NewStore(backend, "q")
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(1234) }

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, records)

	saved, err := backend.Get(ctx, "q.corrupt.1234")
	require.NoError(t, err)
	require.Equal(t, garbage, saved)

	// a later append must not destroy the parked blob
	_, err = store.Append(ctx, newRecord("L2", 1))
	require.NoError(t, err)
	saved, err = backend.Get(ctx, "q.corrupt.1234")
	require.NoError(t, err)
	require.Equal(t, garbage, saved)

	keys, err := store.Quarantined(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"q.corrupt.1234"}, keys)
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(kv.NewMemory(), "q")
	require.NoError(t, err)
	gen := identity.NewGenerator("t")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := NewPendingRecord(gen, "trips", map[string]any{"km": 1})
			if !assert.NoError(t, err) {
				return
			}
			_, err = store.Append(ctx, rec)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, n)
}

func TestNewPendingRecordStampsPayload(t *testing.T) {
	gen := identity.NewGenerator("")
	payload := map[string]any{"km": 85}
	rec, err := NewPendingRecord(gen, "/properties/P1/trips/", payload)
	require.NoError(t, err)
	require.NotEmpty(t, rec.LocalID)
	require.Equal(t, "properties/P1/trips", rec.TargetPath)
	require.Equal(t, rec.LocalID, rec.Payload[identity.FieldLocalID])
	require.NotContains(t, payload, identity.FieldLocalID, "caller payload must not be mutated")
	require.Equal(t, rec.LocalID, rec.RemotePayload()[identity.FieldLocalID])
}
