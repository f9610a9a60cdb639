// Package remote defines the three operations the syncer needs from the
// hosted record store.
package remote

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by Update when recordPath names no record.
	ErrNotFound = errors.New("remote: record not found")
	// ErrNoRoute is returned when a collection path maps to no backing table.
	ErrNoRoute = errors.New("remote: no route for collection")
)

// Store is the hosted, hierarchical, multi-client record store.
type Store interface {
	// Exists reports whether collectionPath holds a record whose field equals value.
	Exists(ctx context.Context, collectionPath, field, value string) (bool, error)
	// Insert writes payload at a newly generated location under collectionPath
	// and returns the generated id.
	Insert(ctx context.Context, collectionPath string, payload map[string]any) (string, error)
	// Update merges fields into the record at recordPath.
	Update(ctx context.Context, recordPath string, fields map[string]any) error
}

// Counter is implemented by stores that can count matches, which lets the
// syncer flag duplicate inserts for one localId.
type Counter interface {
	Count(ctx context.Context, collectionPath, field, value string) (int, error)
}

// IsPermanent reports whether err will recur when the same write is retried:
// an unrouted collection, or an adapter error whose Permanent method says so.
// Everything else, including timeouts and transport errors, is transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoRoute) {
		return true
	}
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

// CleanPath trims whitespace and surrounding slashes and collapses empty segments.
func CleanPath(path string) string {
	segments := Segments(path)
	return strings.Join(segments, "/")
}

// Segments splits a hierarchical path into its non-empty segments.
func Segments(path string) []string {
	return strings.FieldsFunc(strings.TrimSpace(path), func(r rune) bool { return r == '/' })
}

// JoinPath joins collectionPath and id into a record path.
func JoinPath(collectionPath, id string) string {
	return CleanPath(collectionPath + "/" + id)
}

// SplitRecordPath separates a record path into its collection path and id.
func SplitRecordPath(recordPath string) (collectionPath, id string, err error) {
	segments := Segments(recordPath)
	if len(segments) < 2 {
		return "", "", errors.Errorf("remote: record path %q needs a collection and an id", recordPath)
	}
	return strings.Join(segments[:len(segments)-1], "/"), segments[len(segments)-1], nil
}

// Collection returns the last segment of collectionPath, e.g. "trips" for
// "properties/P1/trips".
func Collection(collectionPath string) string {
	segments := Segments(collectionPath)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}
