package fieldsync

import (
	"strings"
	"time"

	"github.com/httprunner/FieldSync/internal/env"
	"github.com/httprunner/FieldSync/pkg/connectivity"
	"github.com/httprunner/FieldSync/pkg/queue"
)

// Remote backends.
const (
	RemoteBitable = "bitable"
	RemoteRTDB    = "rtdb"
	RemoteMemory  = "memory"
)

// Environment variable names, re-exported so embedding applications can
// depend on the root package only.
const (
	EnvDBPath        = env.DBPath
	EnvQueueKey      = env.QueueKey
	EnvSyncInterval  = env.SyncInterval
	EnvProbeURL      = env.ProbeURL
	EnvProbeInterval = env.ProbeInterval
	EnvRemote        = env.Remote
	EnvDeviceTag     = env.DeviceTag
	EnvTables        = env.Tables
	EnvRTDBURL       = env.RTDBURL
	EnvRTDBAuth      = env.RTDBAuth
)

// Config holds everything NewAgent needs.
type Config struct {
	DBPath   string
	QueueKey string

	Remote    string
	Tables    map[string]string
	RTDBURL   string
	RTDBAuth  string
	DeviceTag string

	SyncInterval  time.Duration
	ProbeURL      string
	ProbeInterval time.Duration
}

// ConfigFromEnv reads the FIELDSYNC_* variables, seeding from .env first.
func ConfigFromEnv() Config {
	return Config{
		DBPath:        env.String(env.DBPath, ""),
		QueueKey:      env.String(env.QueueKey, queue.DefaultKey),
		Remote:        strings.ToLower(env.String(env.Remote, RemoteBitable)),
		Tables:        env.Pairs(env.Tables),
		RTDBURL:       env.String(env.RTDBURL, ""),
		RTDBAuth:      env.String(env.RTDBAuth, ""),
		DeviceTag:     env.String(env.DeviceTag, ""),
		SyncInterval:  env.Duration(env.SyncInterval, connectivity.DefaultSyncInterval),
		ProbeURL:      env.String(env.ProbeURL, ""),
		ProbeInterval: env.Duration(env.ProbeInterval, connectivity.DefaultProbeInterval),
	}
}
