package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Variable names shared by the agent, the CLI and the remote adapters.
const (
	DBPath        = "FIELDSYNC_DB_PATH"
	QueueKey      = "FIELDSYNC_QUEUE_KEY"
	SyncInterval  = "FIELDSYNC_SYNC_INTERVAL"
	ProbeURL      = "FIELDSYNC_PROBE_URL"
	ProbeInterval = "FIELDSYNC_PROBE_INTERVAL"
	Remote        = "FIELDSYNC_REMOTE"
	DeviceTag     = "FIELDSYNC_DEVICE_TAG"
	Tables        = "FIELDSYNC_TABLES"
	RTDBURL       = "FIELDSYNC_RTDB_URL"
	RTDBAuth      = "FIELDSYNC_RTDB_AUTH"
)

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
// Non-positive durations are treated as unset.
func Duration(key string, fallback time.Duration) time.Duration {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool parses a boolean environment variable.
func Bool(key string, fallback bool) bool {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		lower := strings.ToLower(val)
		if lower == "1" || lower == "true" || lower == "yes" {
			return true
		}
		if lower == "0" || lower == "false" || lower == "no" {
			return false
		}
	}
	return fallback
}

// Pairs parses "k1=v1,k2=v2" style variables. Entries without '=' or with an
// empty key are skipped.
func Pairs(key string) map[string]string {
	raw := String(key, "")
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == '\n' }) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
