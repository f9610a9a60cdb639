package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/httprunner/FieldSync/pkg/queue"
	"github.com/httprunner/FieldSync/pkg/remote/memstore"
	"github.com/stretchr/testify/require"
)

func TestSubmitOnlineWritesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.syncer.Submit(ctx, queue.PendingRecord{
		TargetPath: "/" + tripsPath + "/",
		Payload:    map[string]any{"km": 42},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeSynced, result.Outcome)
	require.NotEmpty(t, result.LocalID)
	require.NotEmpty(t, result.RemoteID)

	records := h.remote.Records(tripsPath)
	require.Len(t, records, 1)
	require.Equal(t, result.LocalID, records[0].Fields["localId"])

	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSubmitOfflineQueues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setOnline(false)

	result, err := h.syncer.Submit(ctx, queue.PendingRecord{
		TargetPath: tripsPath,
		Payload:    map[string]any{"km": 42, "localId": "L7"},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)
	require.Equal(t, "L7", result.LocalID)
	require.Nil(t, result.Cause)
	require.Zero(t, h.remote.Inserts())

	pending, err := h.syncer.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "L7", pending[0].LocalID)
	require.Equal(t, queue.StatusPending, pending[0].Status)
	require.False(t, pending[0].CreatedAt.IsZero())

	h.setOnline(true)
	report, err := h.syncer.RunSync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Synced)
}

func TestSubmitFailedWriteQueues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("permission denied")
	h.remote.SetHooks(memstore.Hooks{
		BeforeInsert: func(ctx context.Context, collectionPath string, payload map[string]any) error {
			return boom
		},
	})

	result, err := h.syncer.Submit(ctx, queue.PendingRecord{TargetPath: tripsPath})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)
	require.ErrorIs(t, result.Cause, boom)

	// a double tap with the same id does not queue twice
	_, err = h.syncer.Submit(ctx, queue.PendingRecord{LocalID: result.LocalID, TargetPath: tripsPath})
	require.NoError(t, err)
	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSubmitTwiceOnlineWritesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := queue.PendingRecord{LocalID: "L1", TargetPath: tripsPath, Payload: map[string]any{"km": 12}}

	first, err := h.syncer.Submit(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, OutcomeSynced, first.Outcome)
	require.NotEmpty(t, first.RemoteID)

	second, err := h.syncer.Submit(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, OutcomeSynced, second.Outcome)
	require.Empty(t, second.RemoteID)
	require.Equal(t, 1, h.remote.Inserts())

	report, err := h.syncer.RunSync(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Duplicates)
	require.Len(t, h.remote.Records(tripsPath), 1)
}

func TestSubmitConcurrentDoubleTapWritesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := queue.PendingRecord{LocalID: "L1", TargetPath: tripsPath}

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.syncer.Submit(ctx, rec)
			if err == nil {
				outcomes <- result.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	n := 0
	for outcome := range outcomes {
		require.Equal(t, OutcomeSynced, outcome)
		n++
	}
	require.Equal(t, 4, n)
	require.Equal(t, 1, h.remote.Inserts())
}

func TestSubmitExistenceCheckFailureQueues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("search timed out")
	h.remote.SetHooks(memstore.Hooks{
		BeforeExists: func(ctx context.Context, collectionPath, field, value string) error {
			return boom
		},
	})

	result, err := h.syncer.Submit(ctx, queue.PendingRecord{LocalID: "L1", TargetPath: tripsPath})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)
	require.ErrorIs(t, result.Cause, boom)
	require.Zero(t, h.remote.Inserts())

	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSubmitLeavesQueuedRecordToPass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enqueue(t, "L1", map[string]any{"km": 3})

	result, err := h.syncer.Submit(ctx, queue.PendingRecord{LocalID: "L1", TargetPath: tripsPath})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)
	require.Nil(t, result.Cause)
	require.Zero(t, h.remote.Inserts())

	report, err := h.syncer.RunSync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Synced)
	require.Equal(t, 1, h.remote.Inserts())
}

func TestSubmitRequiresTargetPath(t *testing.T) {
	h := newHarness(t)
	_, err := h.syncer.Submit(context.Background(), queue.PendingRecord{Payload: map[string]any{"km": 1}})
	require.ErrorIs(t, err, queue.ErrEmptyTargetPath)
}

func TestUpdateRemote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := h.remote.Insert(ctx, tripsPath, map[string]any{"localId": "L1", "status": "open"})
	require.NoError(t, err)

	require.NoError(t, h.syncer.UpdateRemote(ctx, tripsPath+"/"+id, map[string]any{"status": "closed"}))
	require.Equal(t, "closed", h.remote.Records(tripsPath)[0].Fields["status"])

	require.Error(t, h.syncer.UpdateRemote(ctx, tripsPath+"/"+id, map[string]any{"localId": "L2"}))
	require.Error(t, h.syncer.UpdateRemote(ctx, tripsPath+"/missing", map[string]any{"status": "x"}))
}
