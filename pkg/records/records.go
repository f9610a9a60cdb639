// Package records builds the farm-operation records submitted from the field
// and maps each kind to its remote collection under a property.
package records

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/httprunner/FieldSync/internal/identity"
	"github.com/httprunner/FieldSync/pkg/queue"
	"github.com/httprunner/FieldSync/pkg/remote"
	"github.com/pkg/errors"
)

// Kind identifies a record type.
type Kind string

const (
	KindTrip         Kind = "trip"
	KindFuel         Kind = "fuel"
	KindMachineHours Kind = "machine_hours"
	KindSale         Kind = "sale"
	KindServiceOrder Kind = "service_order"
)

const dateLayout = "2006-01-02"

var collections = map[Kind]string{
	KindTrip:         "trips",
	KindFuel:         "fuel_entries",
	KindMachineHours: "machine_hours",
	KindSale:         "sales",
	KindServiceOrder: "service_orders",
}

// Kinds lists the known kinds in sorted order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(collections))
	for k := range collections {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind accepts a kind or its collection name.
func ParseKind(raw string) (Kind, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for kind, collection := range collections {
		if raw == string(kind) || raw == collection {
			return kind, nil
		}
	}
	return "", errors.Errorf("records: unknown kind %q", raw)
}

// Collection returns the remote collection name of k.
func (k Kind) Collection() string {
	return collections[k]
}

// CollectionPath returns properties/<propertyID>/<collection>.
func CollectionPath(propertyID string, kind Kind) (string, error) {
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return "", errors.New("records: property id is empty")
	}
	if strings.Contains(propertyID, "/") {
		return "", errors.Errorf("records: property id %q must not contain '/'", propertyID)
	}
	collection := kind.Collection()
	if collection == "" {
		return "", errors.Errorf("records: unknown kind %q", kind)
	}
	return remote.JoinPath("properties/"+propertyID, collection), nil
}

// New builds a pending record of kind for propertyID with a fresh localId.
func New(gen *identity.Generator, kind Kind, propertyID string, payload map[string]any) (queue.PendingRecord, error) {
	path, err := CollectionPath(propertyID, kind)
	if err != nil {
		return queue.PendingRecord{}, err
	}
	fields := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	fields["kind"] = string(kind)
	return queue.NewPendingRecord(gen, path, fields)
}

// Entry is a typed record.
type Entry interface {
	Kind() Kind
	Validate() error
	Payload() map[string]any
}

// FromEntry validates e and builds its pending record.
func FromEntry(gen *identity.Generator, propertyID string, e Entry) (queue.PendingRecord, error) {
	if e == nil {
		return queue.PendingRecord{}, errors.New("records: entry is nil")
	}
	if err := e.Validate(); err != nil {
		return queue.PendingRecord{}, err
	}
	return New(gen, e.Kind(), propertyID, e.Payload())
}

// ParseFieldArgs turns key=value pairs into a payload. Values that parse as
// numbers or booleans keep that type.
func ParseFieldArgs(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("records: field %q must be key=value", arg)
		}
		out[key] = parseScalar(strings.TrimSpace(value))
	}
	return out, nil
}

func parseScalar(value string) any {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func requireText(kind Kind, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.Errorf("records: %s %s is required", kind, name)
	}
	return nil
}

func requireNonNegative(kind Kind, name string, value float64) error {
	if value < 0 {
		return errors.Errorf("records: %s %s must not be negative", kind, name)
	}
	return nil
}

func putText(dst map[string]any, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		dst[key] = value
	}
}
