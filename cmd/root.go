package main

import (
	"strings"

	fieldsync "github.com/httprunner/FieldSync"
	"github.com/httprunner/FieldSync/internal/env"
	"github.com/httprunner/FieldSync/pkg/connectivity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	dbPath   string
	remote   string
	logLevel string
	offline  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "fieldsync",
		Short:         "Offline-first queue and sync for farm field records",
		Long:          `fieldsync inspects and drains the local queue of farm records (trips, fuel, machine hours, sales, service orders) that were saved on this device while offline, and syncs them to the hosted record store exactly once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.logLevel)))
			if err != nil {
				return errors.Wrapf(err, "invalid --log-level %q", opts.logLevel)
			}
			zerolog.SetGlobalLevel(level)
			if loaded := env.LoadedFile(); loaded.Path != "" {
				log.Debug().Str("dotenv", loaded.Path).Strs("keys", loaded.Keys).Msg("fieldsync: environment seeded from .env")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite queue file (default from FIELDSYNC_DB_PATH or ~/.fieldsync/queue.sqlite)")
	cmd.PersistentFlags().StringVar(&opts.remote, "remote", "", "Remote backend: bitable, rtdb or memory (default from FIELDSYNC_REMOTE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "Treat the device as offline (queue only, never sync)")

	cmd.AddCommand(
		newQueueCmd(opts),
		newSyncCmd(opts),
		newWatchCmd(opts),
		newUpdateCmd(opts),
	)
	return cmd
}

func (o *rootOptions) newAgent() (*fieldsync.Agent, error) {
	cfg := fieldsync.ConfigFromEnv()
	if v := strings.TrimSpace(o.dbPath); v != "" {
		cfg.DBPath = v
	}
	if v := strings.TrimSpace(o.remote); v != "" {
		cfg.Remote = strings.ToLower(v)
	}
	var agentOpts []fieldsync.Option
	if o.offline {
		agentOpts = append(agentOpts, fieldsync.WithMonitor(connectivity.NewManual(false)))
	}
	return fieldsync.NewAgent(cfg, agentOpts...)
}
