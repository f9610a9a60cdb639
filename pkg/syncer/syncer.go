// Package syncer drains the pending queue into the remote store. Each record
// is checked by localId before it is inserted, so repeated passes converge to
// one remote record per localId.
package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/httprunner/FieldSync/internal/identity"
	"github.com/httprunner/FieldSync/pkg/queue"
	"github.com/httprunner/FieldSync/pkg/remote"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultRecordTimeout = 30 * time.Second

// Options configure a Syncer.
type Options struct {
	// Online reports connectivity; nil means always online.
	Online func() bool
	// RecordTimeout bounds the remote calls made for one record.
	RecordTimeout time.Duration
	// Generator stamps localIds on submitted records lacking one.
	Generator *identity.Generator
}

// Syncer owns the reentrancy flag for one queue.
type Syncer struct {
	queue  *queue.Store
	remote remote.Store

	online        func() bool
	recordTimeout time.Duration
	gen           *identity.Generator

	running atomic.Bool
	// writes joins concurrent immediate writes of one localId.
	writes singleflight.Group
}

// New wires a Syncer over store and rs.
func New(store *queue.Store, rs remote.Store, opts Options) (*Syncer, error) {
	if store == nil {
		return nil, errors.New("syncer: queue store is nil")
	}
	if rs == nil {
		return nil, errors.New("syncer: remote store is nil")
	}
	s := &Syncer{
		queue:         store,
		remote:        rs,
		online:        opts.Online,
		recordTimeout: opts.RecordTimeout,
		gen:           opts.Generator,
	}
	if s.online == nil {
		s.online = func() bool { return true }
	}
	if s.recordTimeout <= 0 {
		s.recordTimeout = defaultRecordTimeout
	}
	if s.gen == nil {
		s.gen = identity.NewGenerator("")
	}
	return s, nil
}

// Running reports whether a pass is in progress.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// RunSync performs one pass over the queue snapshot. A call made while
// another pass runs, or while offline, returns a skipped report at once.
// The returned error covers queue I/O only; per-record remote failures are
// reported in Report.Failures and the records stay queued.
func (s *Syncer) RunSync(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		log.Debug().Msg("syncer: pass already running, trigger dropped")
		return Report{Skipped: true, Reason: ReasonInProgress}, nil
	}
	defer s.running.Store(false)

	if !s.online() {
		log.Debug().Msg("syncer: offline, pass skipped")
		return Report{Skipped: true, Reason: ReasonOffline}, nil
	}

	start := time.Now()
	records, err := s.queue.LoadAll(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "syncer: load queue failed")
	}

	var report Report
	confirmed := make([]string, 0, len(records))
	for i, rec := range records {
		if ctx.Err() != nil {
			report.StillPending += len(records) - i
			log.Warn().Err(ctx.Err()).Int("remaining", len(records)-i).
				Msg("syncer: context done, leaving remaining records queued")
			break
		}
		outcome, dup, failure := s.syncRecord(ctx, rec)
		if dup {
			report.Duplicates++
		}
		switch outcome {
		case outcomeInserted:
			report.Synced++
			confirmed = append(confirmed, rec.LocalID)
		case outcomeAlreadyRemote:
			report.AlreadyRemote++
			confirmed = append(confirmed, rec.LocalID)
		default:
			report.Failed++
			report.StillPending++
			report.Failures = append(report.Failures, *failure)
			if failure.Permanent {
				report.NeedsAttention++
			}
		}
	}

	// Records appended while the pass ran are kept: only confirmed ids go.
	if err := s.queue.RemoveLocalIDs(context.WithoutCancel(ctx), confirmed); err != nil {
		report.Elapsed = time.Since(start)
		return report, errors.Wrap(err, "syncer: commit queue remainder failed")
	}
	report.Elapsed = time.Since(start)

	event := log.Info()
	if report.Failed > 0 {
		event = log.Warn()
	}
	event.Int("total", len(records)).
		Int("synced", report.Synced).
		Int("already_remote", report.AlreadyRemote).
		Int("still_pending", report.StillPending).
		Int("duplicates", report.Duplicates).
		Int("needs_attention", report.NeedsAttention).
		Dur("elapsed", report.Elapsed).
		Msg("syncer: pass finished")
	return report, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeInserted
	outcomeAlreadyRemote
)

func (s *Syncer) syncRecord(parent context.Context, rec queue.PendingRecord) (outcome, bool, *Failure) {
	ctx, cancel := context.WithTimeout(parent, s.recordTimeout)
	defer cancel()

	logger := log.With().Str("local_id", rec.LocalID).Str("target_path", rec.TargetPath).Logger()

	matches, err := s.count(ctx, rec)
	if err != nil {
		return outcomeFailed, false, recordFailure(logger, rec, StageExists, err)
	}
	if matches > 0 {
		dup := matches > 1
		if dup {
			logger.Warn().Int("matches", matches).Msg("syncer: duplicate remote records for localId")
		}
		logger.Debug().Msg("syncer: already remote, dropped without write")
		return outcomeAlreadyRemote, dup, nil
	}

	remoteID, err := s.remote.Insert(ctx, rec.TargetPath, rec.RemotePayload())
	if err != nil {
		return outcomeFailed, false, recordFailure(logger, rec, StageInsert, err)
	}
	logger.Debug().Str("remote_id", remoteID).Msg("syncer: record inserted")
	return outcomeInserted, false, nil
}

func recordFailure(logger zerolog.Logger, rec queue.PendingRecord, stage Stage, err error) *Failure {
	f := &Failure{
		LocalID:    rec.LocalID,
		TargetPath: rec.TargetPath,
		Stage:      stage,
		Err:        err,
		Permanent:  remote.IsPermanent(err),
	}
	event := logger.Warn()
	if f.Permanent {
		event = logger.Error()
	}
	event.Str("stage", string(stage)).Bool("permanent", f.Permanent).Str("error", truncateError(err)).
		Msg("syncer: record kept after remote failure")
	return f
}

// count uses remote.Counter when available so duplicates surface in reports.
func (s *Syncer) count(ctx context.Context, rec queue.PendingRecord) (int, error) {
	if counter, ok := s.remote.(remote.Counter); ok {
		return counter.Count(ctx, rec.TargetPath, identity.FieldLocalID, rec.LocalID)
	}
	found, err := s.remote.Exists(ctx, rec.TargetPath, identity.FieldLocalID, rec.LocalID)
	if err != nil || !found {
		return 0, err
	}
	return 1, nil
}
