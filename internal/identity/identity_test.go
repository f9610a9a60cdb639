package identity

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateUnique(t *testing.T) {
	g := NewGenerator("")
	seen := make(map[string]struct{}, 5000)
	for i := 0; i < 5000; i++ {
		id, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s after %d draws", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerateIsTimeOrderedUUIDv7(t *testing.T) {
	var g Generator
	id, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("expected bare uuid, got %q: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestGenerateWithTag(t *testing.T) {
	g := NewGenerator(" Tractor-07! ")
	id, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !strings.HasPrefix(id, "tractor07-") {
		t.Fatalf("expected sanitized tag prefix, got %q", id)
	}
}

func TestGenerateSourceError(t *testing.T) {
	g := &Generator{random: func() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy exhausted") }}
	if _, err := g.Generate(); err == nil {
		t.Fatalf("expected error from failing source")
	}
	if id := g.MustGenerate(); id == "" {
		t.Fatalf("MustGenerate should fall back to a v4 id")
	}
}

func TestStampPreservesExistingID(t *testing.T) {
	payload := map[string]any{FieldLocalID: "L1", "km": 120}
	out, id := Stamp(payload, "L2")
	if id != "L1" || out[FieldLocalID] != "L1" {
		t.Fatalf("existing localId must be immutable, got %q / %v", id, out[FieldLocalID])
	}

	out, id = Stamp(nil, "L3")
	if id != "L3" || out[FieldLocalID] != "L3" {
		t.Fatalf("expected stamped L3, got %q / %v", id, out[FieldLocalID])
	}

	out, id = Stamp(map[string]any{FieldLocalID: "  "}, "L4")
	if id != "L4" || out[FieldLocalID] != "L4" {
		t.Fatalf("blank localId should be replaced, got %q", id)
	}
}

func TestSanitizeTagTruncates(t *testing.T) {
	if got := sanitizeTag("ABCDEFGHIJKLMNOP"); got != "abcdefghijkl" {
		t.Fatalf("unexpected tag %q", got)
	}
}

func TestHostTagHashesFirstAvailableID(t *testing.T) {
	empty := func() string { return " \n" }
	machine := func() string { return "0F3C9A7E21D84B6A\n" }
	other := func() string { return "should-not-be-read" }

	got := hostTagFrom(empty, machine, other)
	if len(got) != hostTagLen {
		t.Fatalf("want %d chars, got %q", hostTagLen, got)
	}
	if strings.Contains("0f3c9a7e21d84b6a", got) {
		t.Fatalf("tag %q exposes the raw machine id", got)
	}
	if again := hostTagFrom(func() string { return "0f3c9a7e21d84b6a" }); again != got {
		t.Fatalf("tag must be stable across case and whitespace: %q vs %q", again, got)
	}
	if sanitizeTag(got) != got {
		t.Fatalf("tag %q does not survive sanitizeTag", got)
	}
	if hostTagFrom(empty) != "" {
		t.Fatalf("expected empty tag without a machine id")
	}
}

func TestParseIORegUUID(t *testing.T) {
	out := `+-o J314sAP  <class IOPlatformExpertDevice>
    {
      "IOPlatformSerialNumber" = "C02XXXX"
      "IOPlatformUUID" = "5A1E0C3B-9D44-4F0B-8E61-2B7C9F0D1A22"
    }`
	if got := parseIORegUUID(out); got != "5A1E0C3B-9D44-4F0B-8E61-2B7C9F0D1A22" {
		t.Fatalf("unexpected uuid %q", got)
	}
	if got := parseIORegUUID("no uuid here"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
