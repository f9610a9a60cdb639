package syncer

import (
	"context"
	"strings"

	"github.com/httprunner/FieldSync/internal/identity"
	"github.com/httprunner/FieldSync/pkg/queue"
	"github.com/httprunner/FieldSync/pkg/remote"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Outcome is where a submitted record ended up.
type Outcome string

const (
	OutcomeSynced Outcome = "synced"
	OutcomeQueued Outcome = "queued"
)

// SubmitResult describes a Submit call.
type SubmitResult struct {
	Outcome  Outcome
	LocalID  string
	RemoteID string
	// Cause is the remote error that sent the record to the queue, if any.
	Cause error
}

// Submit writes rec to the remote store when online and queues it otherwise
// or when the write fails. Only a failure to queue is returned as an error.
//
// A record already in the queue is left to RunSync, and an immediate write
// first checks the remote for rec's localId, so submitting the same record
// twice never creates a second remote copy.
func (s *Syncer) Submit(ctx context.Context, rec queue.PendingRecord) (SubmitResult, error) {
	rec, err := s.prepare(rec)
	if err != nil {
		return SubmitResult{}, err
	}
	result := SubmitResult{LocalID: rec.LocalID}

	if s.online() {
		queued, err := s.queued(ctx, rec.LocalID)
		switch {
		case err != nil:
			return result, errors.Wrap(err, "syncer: read queue failed")
		case queued:
			log.Info().Str("local_id", rec.LocalID).Msg("syncer: record already queued, left to the next pass")
		default:
			v, writeErr, _ := s.writes.Do(rec.LocalID, func() (any, error) {
				return s.writeOnce(ctx, rec)
			})
			if writeErr == nil {
				result.Outcome = OutcomeSynced
				result.RemoteID, _ = v.(string)
				return result, nil
			}
			result.Cause = writeErr
			log.Warn().Str("local_id", rec.LocalID).Bool("permanent", remote.IsPermanent(writeErr)).
				Str("error", truncateError(writeErr)).Msg("syncer: immediate write failed, queueing")
		}
	}

	if _, err := s.queue.Append(ctx, rec); err != nil {
		return result, errors.Wrap(err, "syncer: queue record failed")
	}
	result.Outcome = OutcomeQueued
	log.Info().Str("local_id", rec.LocalID).Str("target_path", rec.TargetPath).
		Msg("syncer: record saved locally, will sync later")
	return result, nil
}

// writeOnce inserts rec unless the remote already holds its localId. The
// returned id is empty when nothing was written.
func (s *Syncer) writeOnce(parent context.Context, rec queue.PendingRecord) (string, error) {
	ctx, cancel := context.WithTimeout(parent, s.recordTimeout)
	defer cancel()

	logger := log.With().Str("local_id", rec.LocalID).Str("target_path", rec.TargetPath).Logger()
	matches, err := s.count(ctx, rec)
	if err != nil {
		return "", errors.Wrap(err, "syncer: existence check failed")
	}
	if matches > 0 {
		if matches > 1 {
			logger.Warn().Int("matches", matches).Msg("syncer: duplicate remote records for localId")
		}
		logger.Info().Msg("syncer: record already remote, not written again")
		return "", nil
	}
	remoteID, err := s.remote.Insert(ctx, rec.TargetPath, rec.RemotePayload())
	if err != nil {
		return "", err
	}
	logger.Info().Str("remote_id", remoteID).Msg("syncer: record written immediately")
	return remoteID, nil
}

func (s *Syncer) queued(ctx context.Context, localID string) (bool, error) {
	pending, err := s.queue.LoadAll(ctx)
	if err != nil {
		return false, err
	}
	for _, rec := range pending {
		if rec.LocalID == localID {
			return true, nil
		}
	}
	return false, nil
}

// UpdateRemote merges fields into an existing remote record.
func (s *Syncer) UpdateRemote(ctx context.Context, recordPath string, fields map[string]any) error {
	if len(fields) == 0 {
		return errors.New("syncer: no fields to update")
	}
	if _, ok := fields[identity.FieldLocalID]; ok {
		return errors.New("syncer: localId is immutable")
	}
	if err := s.remote.Update(ctx, recordPath, fields); err != nil {
		return errors.Wrapf(err, "syncer: update %s failed", recordPath)
	}
	return nil
}

// Pending returns the queued records in insertion order.
func (s *Syncer) Pending(ctx context.Context) ([]queue.PendingRecord, error) {
	return s.queue.LoadAll(ctx)
}

func (s *Syncer) prepare(rec queue.PendingRecord) (queue.PendingRecord, error) {
	rec.TargetPath = strings.Trim(strings.TrimSpace(rec.TargetPath), "/")
	if rec.TargetPath == "" {
		return rec, queue.ErrEmptyTargetPath
	}
	if strings.TrimSpace(rec.LocalID) == "" {
		if existing := identity.LocalIDOf(rec.Payload); existing != "" {
			rec.LocalID = existing
		} else {
			id, err := s.gen.Generate()
			if err != nil {
				return rec, errors.Wrap(err, "syncer: allocate localId failed")
			}
			rec.LocalID = id
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.gen.CreatedAt()
	}
	rec.Payload = clone(rec.Payload)
	rec.Payload[identity.FieldLocalID] = rec.LocalID
	rec.Status = queue.StatusPending
	return rec, nil
}

func clone(src map[string]any) map[string]any {
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}
