package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/httprunner/FieldSync/pkg/syncer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultSyncInterval is the fallback trigger period for missed transitions.
const DefaultSyncInterval = 5 * time.Minute

// Trigger reasons.
const (
	TriggerStartup   = "startup"
	TriggerReconnect = "reconnect"
	TriggerInterval  = "interval"
	TriggerManual    = "manual"
)

// Runner is the sync entry point the gate invokes.
type Runner interface {
	RunSync(ctx context.Context) (syncer.Report, error)
}

// Gate invokes a Runner when connectivity returns, periodically, and on
// Trigger. Invocations run in their own goroutines; the runner is expected
// to drop overlapping passes.
type Gate struct {
	monitor  Monitor
	runner   Runner
	interval time.Duration

	triggers chan string
	wg       sync.WaitGroup

	mu         sync.Mutex
	wasOnline  bool
	onReport   func(reason string, report syncer.Report, err error)
	lastReport syncer.Report
}

// NewGate builds a gate. interval falls back to DefaultSyncInterval.
func NewGate(monitor Monitor, runner Runner, interval time.Duration) (*Gate, error) {
	if monitor == nil {
		return nil, errors.New("connectivity: monitor is nil")
	}
	if runner == nil {
		return nil, errors.New("connectivity: runner is nil")
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Gate{
		monitor:  monitor,
		runner:   runner,
		interval: interval,
		triggers: make(chan string, 1),
	}, nil
}

// OnReport registers a callback invoked after every pass.
func (g *Gate) OnReport(fn func(reason string, report syncer.Report, err error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onReport = fn
}

// Online is the signal the syncer consults before a pass.
func (g *Gate) Online() bool {
	return g.monitor.Online()
}

// LastReport returns the report of the most recent finished pass.
func (g *Gate) LastReport() syncer.Report {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastReport
}

// Trigger requests a pass. Requests arriving while one is already waiting
// are coalesced.
func (g *Gate) Trigger(reason string) {
	select {
	case g.triggers <- reason:
	default:
		log.Debug().Str("reason", reason).Msg("connectivity: trigger coalesced")
	}
}

// Run subscribes to the monitor, runs a first pass, and dispatches triggers
// until ctx is done. It waits for in-flight passes before returning.
func (g *Gate) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("connectivity: context cannot be nil")
	}
	// Snapshot after subscribing: a change landing in between is then either
	// delivered to handleChange or already visible in Online().
	unsubscribe := g.monitor.Subscribe(g.handleChange)
	defer unsubscribe()
	g.mu.Lock()
	g.wasOnline = g.monitor.Online()
	g.mu.Unlock()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", g.interval).Bool("online", g.Online()).Msg("connectivity: gate started")
	g.dispatch(ctx, TriggerStartup)
	for {
		select {
		case <-ctx.Done():
			g.wg.Wait()
			return nil
		case <-ticker.C:
			g.dispatch(ctx, TriggerInterval)
		case reason := <-g.triggers:
			g.dispatch(ctx, reason)
		}
	}
}

func (g *Gate) handleChange(online bool) {
	g.mu.Lock()
	transition := online && !g.wasOnline
	g.wasOnline = online
	g.mu.Unlock()
	if transition {
		g.Trigger(TriggerReconnect)
	}
}

func (g *Gate) dispatch(ctx context.Context, reason string) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		report, err := g.runner.RunSync(ctx)
		if err != nil {
			log.Error().Err(err).Str("reason", reason).Msg("connectivity: sync pass failed")
		} else if !report.Skipped {
			log.Info().Str("reason", reason).Int("synced", report.Synced).
				Int("still_pending", report.StillPending).Msg("connectivity: sync pass done")
		}
		g.mu.Lock()
		if err == nil && !report.Skipped {
			g.lastReport = report
		}
		fn := g.onReport
		g.mu.Unlock()
		if fn != nil {
			fn(reason, report, err)
		}
	}()
}
