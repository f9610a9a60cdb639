package syncer

import (
	"time"
	"unicode/utf8"
)

// Reason explains why a pass was skipped.
type Reason string

const (
	ReasonInProgress Reason = "in_progress"
	ReasonOffline    Reason = "offline"
)

// Stage names the remote call that failed for a record.
type Stage string

const (
	StageExists Stage = "exists"
	StageInsert Stage = "insert"
)

// Failure describes one record left in the queue by a pass.
type Failure struct {
	LocalID    string
	TargetPath string
	Stage      Stage
	Err        error
	// Permanent is set when the remote said the same write cannot succeed
	// as is (missing table or column, rejected value, no permission). The
	// record is still retried; someone has to fix the route or the schema.
	Permanent bool
}

// Report summarizes one RunSync call.
type Report struct {
	Skipped bool
	Reason  Reason

	// Synced counts records inserted during this pass.
	Synced int
	// AlreadyRemote counts records found remotely and dropped without a write.
	AlreadyRemote int
	// StillPending counts records of the pass snapshot that remain queued.
	StillPending int
	Failed       int
	// NeedsAttention counts failures marked Permanent.
	NeedsAttention int
	// Duplicates counts localIds seen more than once remotely.
	Duplicates int
	Failures   []Failure

	Elapsed time.Duration
}

// Confirmed is the number of records removed from the queue by the pass.
func (r Report) Confirmed() int {
	return r.Synced + r.AlreadyRemote
}

const maxErrorLength = 512

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
