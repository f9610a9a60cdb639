package queue

import (
	"strings"
	"time"

	"github.com/httprunner/FieldSync/internal/identity"
)

// Status is the lifecycle state of a record. Only Pending is ever stored;
// Synced exists for the duration of a sync pass before the record is dropped.
type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
)

// PendingRecord is one locally created record awaiting remote confirmation.
type PendingRecord struct {
	LocalID    string         `json:"localId"`
	TargetPath string         `json:"targetPath"`
	Payload    map[string]any `json:"payload"`
	Status     Status         `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// NewPendingRecord stamps payload with a fresh localId from gen (keeping any
// id already present) and returns the record in Pending state.
func NewPendingRecord(gen *identity.Generator, targetPath string, payload map[string]any) (PendingRecord, error) {
	id, err := gen.Generate()
	if err != nil {
		return PendingRecord{}, err
	}
	stamped, localID := identity.Stamp(clonePayload(payload), id)
	return PendingRecord{
		LocalID:    localID,
		TargetPath: strings.Trim(strings.TrimSpace(targetPath), "/"),
		Payload:    stamped,
		Status:     StatusPending,
		CreatedAt:  gen.CreatedAt(),
	}, nil
}

// RemotePayload returns the fields written to the remote store: the payload
// with localId guaranteed present.
func (r PendingRecord) RemotePayload() map[string]any {
	out := clonePayload(r.Payload)
	out[identity.FieldLocalID] = r.LocalID
	return out
}

func (r PendingRecord) validate() error {
	if strings.TrimSpace(r.LocalID) == "" {
		return ErrEmptyLocalID
	}
	if strings.TrimSpace(r.TargetPath) == "" {
		return ErrEmptyTargetPath
	}
	return nil
}

func clonePayload(src map[string]any) map[string]any {
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}
