package fieldsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/httprunner/FieldSync/pkg/connectivity"
	"github.com/httprunner/FieldSync/pkg/kv"
	"github.com/httprunner/FieldSync/pkg/records"
	"github.com/httprunner/FieldSync/pkg/remote/memstore"
	"github.com/httprunner/FieldSync/pkg/syncer"
	"github.com/stretchr/testify/require"
)

func TestAgentQueuesOfflineAndDrainsOnReconnect(t *testing.T) {
	monitor := connectivity.NewManual(false)
	rs := memstore.New()
	agent, err := NewAgent(Config{DeviceTag: "tablet1", SyncInterval: time.Hour},
		WithKV(kv.NewMemory()), WithRemote(rs), WithMonitor(monitor))
	require.NoError(t, err)
	t.Cleanup(func() { _ = agent.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	result, err := agent.SubmitEntry(ctx, "P1", records.Trip{Vehicle: "truck-2", Kilometers: 120})
	require.NoError(t, err)
	require.Equal(t, syncer.OutcomeQueued, result.Outcome)
	require.Contains(t, result.LocalID, "tablet1-")

	pending, err := agent.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	monitor.Set(true)
	require.Eventually(t, func() bool {
		pending, err := agent.Pending(ctx)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	remoteRecords := rs.Records("properties/P1/trips")
	require.Len(t, remoteRecords, 1)
	require.Equal(t, result.LocalID, remoteRecords[0].Fields["localId"])
}

func TestAgentSubmitOnlineAndSyncNow(t *testing.T) {
	rs := memstore.New()
	agent, err := NewAgent(Config{}, WithKV(kv.NewMemory()), WithRemote(rs), WithMonitor(connectivity.NewManual(true)))
	require.NoError(t, err)
	defer agent.Close()
	ctx := context.Background()

	result, err := agent.Submit(ctx, records.KindFuel, "P9", map[string]any{"liters": 40})
	require.NoError(t, err)
	require.Equal(t, syncer.OutcomeSynced, result.Outcome)
	require.Len(t, rs.Records("properties/P9/fuel_entries"), 1)

	report, err := agent.SyncNow(ctx)
	require.NoError(t, err)
	require.False(t, report.Skipped)
	require.Zero(t, report.Synced)

	_, err = agent.Submit(ctx, records.KindTrip, "", nil)
	require.Error(t, err)
}

func TestNewAgentWithSQLiteAndMemoryRemote(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.sqlite")
	cfg := Config{DBPath: dbPath, Remote: RemoteMemory}

	agent, err := NewAgent(cfg, WithMonitor(connectivity.NewManual(false)))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = agent.Submit(ctx, records.KindSale, "P1", map[string]any{"product": "corn"})
	require.NoError(t, err)
	require.NoError(t, agent.Close())

	reopened, err := NewAgent(cfg, WithMonitor(connectivity.NewManual(false)))
	require.NoError(t, err)
	defer reopened.Close()
	pending, err := reopened.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "properties/P1/sales", pending[0].TargetPath)
}

func TestNewAgentRejectsUnknownRemote(t *testing.T) {
	_, err := NewAgent(Config{Remote: "carrier-pigeon"}, WithKV(kv.NewMemory()))
	require.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvRemote, "RTDB")
	t.Setenv(EnvRTDBURL, "https://farm-ops.example.com")
	t.Setenv(EnvSyncInterval, "90s")
	t.Setenv(EnvProbeInterval, "-1s")
	t.Setenv(EnvTables, "trips=https://x.feishu.cn/base/a?table=t1,sales=https://x.feishu.cn/base/a?table=t2")

	cfg := ConfigFromEnv()
	require.Equal(t, RemoteRTDB, cfg.Remote)
	require.Equal(t, 90*time.Second, cfg.SyncInterval)
	require.Equal(t, connectivity.DefaultProbeInterval, cfg.ProbeInterval)
	require.Len(t, cfg.Tables, 2)
	require.Equal(t, "fieldsync.pending_records", cfg.QueueKey)
}
