// Package fieldsync wires the offline-first write path of the farm-ops data
// entry tool: a durable local queue, a connectivity gate and an idempotent
// syncer in front of the hosted record store.
package fieldsync

import (
	"context"
	"errors"
	"strings"

	"github.com/httprunner/FieldSync/internal/env"
	"github.com/httprunner/FieldSync/internal/feishusdk"
	"github.com/httprunner/FieldSync/internal/identity"
	"github.com/httprunner/FieldSync/pkg/connectivity"
	"github.com/httprunner/FieldSync/pkg/kv"
	"github.com/httprunner/FieldSync/pkg/queue"
	"github.com/httprunner/FieldSync/pkg/records"
	"github.com/httprunner/FieldSync/pkg/remote"
	"github.com/httprunner/FieldSync/pkg/remote/bitable"
	"github.com/httprunner/FieldSync/pkg/remote/memstore"
	"github.com/httprunner/FieldSync/pkg/remote/rtdb"
	"github.com/httprunner/FieldSync/pkg/syncer"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Option overrides a collaborator NewAgent would otherwise build from Config.
type Option func(*agentDeps)

type agentDeps struct {
	kv      kv.Store
	remote  remote.Store
	monitor connectivity.Monitor
}

// WithKV uses store instead of opening the SQLite file. The agent closes it
// on Close.
func WithKV(store kv.Store) Option {
	return func(d *agentDeps) { d.kv = store }
}

// WithRemote uses rs instead of the backend named by Config.Remote.
func WithRemote(rs remote.Store) Option {
	return func(d *agentDeps) { d.remote = rs }
}

// WithMonitor uses m instead of the HTTP probe, e.g. a connectivity.Manual
// fed by the host platform.
func WithMonitor(m connectivity.Monitor) Option {
	return func(d *agentDeps) { d.monitor = m }
}

// Agent is the entry point used by the data-entry UI.
type Agent struct {
	cfg Config

	kv      kv.Store
	queue   *queue.Store
	remote  remote.Store
	monitor connectivity.Monitor
	probe   *connectivity.Probe
	gate    *connectivity.Gate
	syncer  *syncer.Syncer
	gen     *identity.Generator
}

// NewAgentFromEnv builds an agent from FIELDSYNC_* and FEISHU_* variables.
func NewAgentFromEnv(opts ...Option) (*Agent, error) {
	if err := env.Ensure(); err != nil {
		log.Warn().Err(err).Msg("fieldsync: load .env failed")
	}
	return NewAgent(ConfigFromEnv(), opts...)
}

// NewAgent wires storage, remote, connectivity and syncer.
func NewAgent(cfg Config, opts ...Option) (agent *Agent, err error) {
	deps := agentDeps{}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}

	a := &Agent{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.kv = deps.kv
	if a.kv == nil {
		sqliteKV, err := kv.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.kv = sqliteKV
	}
	if a.queue, err = queue.NewStore(a.kv, cfg.QueueKey); err != nil {
		return nil, err
	}

	probeURL := cfg.ProbeURL
	a.remote = deps.remote
	if a.remote == nil {
		var defaultProbe string
		a.remote, defaultProbe, err = newRemote(cfg)
		if err != nil {
			return nil, err
		}
		if probeURL == "" {
			probeURL = defaultProbe
		}
	}

	a.monitor = deps.monitor
	if a.monitor == nil {
		if probeURL == "" {
			a.monitor = connectivity.NewManual(true)
		} else {
			if a.probe, err = connectivity.NewProbe(probeURL, cfg.ProbeInterval, nil); err != nil {
				return nil, err
			}
			a.monitor = a.probe
		}
	}

	tag := cfg.DeviceTag
	if tag == "" {
		tag = identity.HostTag()
	}
	a.gen = identity.NewGenerator(tag)

	if a.syncer, err = syncer.New(a.queue, a.remote, syncer.Options{
		Online:    a.monitor.Online,
		Generator: a.gen,
	}); err != nil {
		return nil, err
	}
	if a.gate, err = connectivity.NewGate(a.monitor, a.syncer, cfg.SyncInterval); err != nil {
		return nil, err
	}
	return a, nil
}

// newRemote builds the backend named by cfg.Remote and returns a URL worth
// probing for connectivity.
func newRemote(cfg Config) (remote.Store, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Remote)) {
	case "", RemoteBitable:
		client, err := feishusdk.NewClientFromEnv()
		if err != nil {
			return nil, "", err
		}
		store, err := bitable.New(client, cfg.Tables)
		if err != nil {
			return nil, "", err
		}
		return store, client.BaseURL(), nil
	case RemoteRTDB:
		client, err := rtdb.NewClient(cfg.RTDBURL, cfg.RTDBAuth, nil)
		if err != nil {
			return nil, "", err
		}
		return client, client.BaseURL(), nil
	case RemoteMemory:
		return memstore.New(), "", nil
	default:
		return nil, "", pkgerrors.Errorf("fieldsync: unknown remote %q", cfg.Remote)
	}
}

// Start runs the connectivity probe and the sync gate until ctx is done.
func (a *Agent) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}
	group, gctx := errgroup.WithContext(ctx)
	if a.probe != nil {
		goSafe(gctx, group, "connectivity probe", a.probe.Run)
	}
	goSafe(gctx, group, "sync gate", a.gate.Run)
	log.Info().Str("queue_key", a.queue.Key()).Bool("online", a.Online()).Msg("fieldsync: agent started")
	return group.Wait()
}

// Submit builds a record of kind for propertyID and writes or queues it.
func (a *Agent) Submit(ctx context.Context, kind records.Kind, propertyID string, payload map[string]any) (syncer.SubmitResult, error) {
	rec, err := records.New(a.gen, kind, propertyID, payload)
	if err != nil {
		return syncer.SubmitResult{}, err
	}
	return a.syncer.Submit(ctx, rec)
}

// SubmitEntry validates a typed entry and writes or queues it.
func (a *Agent) SubmitEntry(ctx context.Context, propertyID string, entry records.Entry) (syncer.SubmitResult, error) {
	rec, err := records.FromEntry(a.gen, propertyID, entry)
	if err != nil {
		return syncer.SubmitResult{}, err
	}
	return a.syncer.Submit(ctx, rec)
}

// SyncNow runs one pass synchronously.
func (a *Agent) SyncNow(ctx context.Context) (syncer.Report, error) {
	return a.syncer.RunSync(ctx)
}

// Trigger asks the running gate for a pass without waiting for it.
func (a *Agent) Trigger() {
	a.gate.Trigger(connectivity.TriggerManual)
}

// UpdateRemote merges fields into a record that is already remote.
func (a *Agent) UpdateRemote(ctx context.Context, recordPath string, fields map[string]any) error {
	return a.syncer.UpdateRemote(ctx, recordPath, fields)
}

// Pending lists the queued records.
func (a *Agent) Pending(ctx context.Context) ([]queue.PendingRecord, error) {
	return a.syncer.Pending(ctx)
}

// Quarantined lists kv keys holding queue blobs that failed to decode.
func (a *Agent) Quarantined(ctx context.Context) ([]string, error) {
	return a.queue.Quarantined(ctx)
}

// Online reports the connectivity monitor state.
func (a *Agent) Online() bool {
	return a.monitor.Online()
}

// CheckConnectivity probes once when the agent owns an HTTP probe.
func (a *Agent) CheckConnectivity(ctx context.Context) bool {
	if a.probe != nil {
		return a.probe.Check(ctx)
	}
	return a.monitor.Online()
}

// LastReport returns the last pass finished by the gate.
func (a *Agent) LastReport() syncer.Report {
	return a.gate.LastReport()
}

// Close releases the local store.
func (a *Agent) Close() error {
	if a == nil || a.kv == nil {
		return nil
	}
	err := a.kv.Close()
	a.kv = nil
	return err
}
