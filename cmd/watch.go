package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Probe connectivity and sync on reconnect and on an interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := root.newAgent()
			if err != nil {
				return err
			}
			defer agent.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := agent.Start(ctx); err != nil {
				return err
			}
			log.Info().Int("last_synced", agent.LastReport().Synced).Msg("watch stopped")
			return nil
		},
	}
}
