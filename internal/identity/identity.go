// Package identity assigns the client-generated localId carried by every
// record created on this device.
package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FieldLocalID is the payload field holding the idempotency key.
const FieldLocalID = "localId"

// Generator produces localIds. The zero value generates bare UUIDv7 strings.
type Generator struct {
	// Tag is an optional device prefix joined to the UUID with '-'.
	Tag string

	// now and random are overridable in tests.
	now    func() time.Time
	random func() (uuid.UUID, error)
}

// NewGenerator returns a generator that prefixes ids with the sanitized tag.
func NewGenerator(tag string) *Generator {
	return &Generator{Tag: sanitizeTag(tag)}
}

// Generate returns a new localId. UUIDv7 embeds a millisecond timestamp
// followed by 74 random bits, so ids sort by creation time and collisions on
// one device are practically impossible without any server round trip.
func (g *Generator) Generate() (string, error) {
	var (
		id  uuid.UUID
		err error
	)
	if g != nil && g.random != nil {
		id, err = g.random()
	} else {
		id, err = uuid.NewV7()
	}
	if err != nil {
		return "", errors.Wrap(err, "identity: generate uuid v7 failed")
	}
	if g == nil || g.Tag == "" {
		return id.String(), nil
	}
	return g.Tag + "-" + id.String(), nil
}

// MustGenerate is Generate for callers that cannot surface an error; it
// falls back to a random v4 id when the v7 source fails.
func (g *Generator) MustGenerate() string {
	id, err := g.Generate()
	if err == nil {
		return id
	}
	fallback := uuid.NewString()
	if g != nil && g.Tag != "" {
		return g.Tag + "-" + fallback
	}
	return fallback
}

// CreatedAt returns the generator clock, used to stamp PendingRecord.CreatedAt.
func (g *Generator) CreatedAt() time.Time {
	if g != nil && g.now != nil {
		return g.now()
	}
	return time.Now()
}

// Stamp writes id into payload[FieldLocalID] unless a non-empty id is already
// present, and returns the effective id. A nil payload is allocated.
func Stamp(payload map[string]any, id string) (map[string]any, string) {
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	if existing := LocalIDOf(payload); existing != "" {
		return payload, existing
	}
	payload[FieldLocalID] = id
	return payload, id
}

// LocalIDOf reads the localId carried by payload, or "".
func LocalIDOf(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	raw, ok := payload[FieldLocalID]
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return strings.TrimSpace(s)
}

func sanitizeTag(tag string) string {
	const maxTagLen = 12
	tag = strings.ToLower(strings.TrimSpace(tag))
	var b strings.Builder
	for _, r := range tag {
		if b.Len() >= maxTagLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
