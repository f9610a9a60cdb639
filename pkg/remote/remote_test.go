package remote

import (
	"testing"

	"github.com/pkg/errors"
)

func TestPathHelpers(t *testing.T) {
	if got := CleanPath(" /properties//P1/trips/ "); got != "properties/P1/trips" {
		t.Fatalf("CleanPath got %q", got)
	}
	if got := JoinPath("properties/P1/trips/", "rec1"); got != "properties/P1/trips/rec1" {
		t.Fatalf("JoinPath got %q", got)
	}
	col, id, err := SplitRecordPath("properties/P1/trips/rec1")
	if err != nil {
		t.Fatalf("SplitRecordPath returned error: %v", err)
	}
	if col != "properties/P1/trips" || id != "rec1" {
		t.Fatalf("SplitRecordPath got %q %q", col, id)
	}
	if _, _, err := SplitRecordPath("trips"); err == nil {
		t.Fatalf("expected error for single segment path")
	}
	if got := Collection("properties/P1/trips"); got != "trips" {
		t.Fatalf("Collection got %q", got)
	}
	if got := Collection(""); got != "" {
		t.Fatalf("Collection of empty path got %q", got)
	}
}

type classified bool

func (c classified) Error() string   { return "classified" }
func (c classified) Permanent() bool { return bool(c) }

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection reset"), false},
		{errors.Wrap(ErrNoRoute, "collection \"sales\""), true},
		{errors.Wrap(classified(true), "insert"), true},
		{errors.Wrap(classified(false), "insert"), false},
	}
	for _, tc := range cases {
		if got := IsPermanent(tc.err); got != tc.want {
			t.Fatalf("IsPermanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
