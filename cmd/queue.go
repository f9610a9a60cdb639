package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/httprunner/FieldSync/pkg/records"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newQueueCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or add to the local pending queue",
	}
	cmd.AddCommand(newQueueListCmd(root), newQueueAddCmd(root))
	return cmd
}

func newQueueListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued records in insertion order",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := root.newAgent()
			if err != nil {
				return err
			}
			defer agent.Close()

			pending, err := agent.Pending(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LOCAL ID\tTARGET PATH\tCREATED AT")
			for _, rec := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rec.LocalID, rec.TargetPath, rec.CreatedAt.Local().Format(time.DateTime))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			quarantined, err := agent.Quarantined(cmd.Context())
			if err != nil {
				return err
			}
			for _, key := range quarantined {
				log.Warn().Str("key", key).Msg("quarantined queue blob needs manual review")
			}
			return nil
		},
	}
}

func newQueueAddCmd(root *rootOptions) *cobra.Command {
	var (
		flagKind     string
		flagProperty string
		flagFields   []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a record and write it now or queue it",
		Example: `  fieldsync queue add --kind trip --property P1 --field km=120 --field vehicle=truck-2
  fieldsync --offline queue add --kind fuel --property P1 --field liters=40`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := records.ParseKind(flagKind)
			if err != nil {
				return err
			}
			payload, err := records.ParseFieldArgs(flagFields)
			if err != nil {
				return err
			}
			if len(payload) == 0 {
				return errors.New("at least one --field key=value is required")
			}

			agent, err := root.newAgent()
			if err != nil {
				return err
			}
			defer agent.Close()

			agent.CheckConnectivity(cmd.Context())
			result, err := agent.Submit(cmd.Context(), kind, flagProperty, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", result.Outcome, result.LocalID)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagKind, "kind", "", "Record kind: trip, fuel, machine_hours, sale, service_order")
	cmd.Flags().StringVar(&flagProperty, "property", "", "Property (farm) id")
	cmd.Flags().StringArrayVar(&flagFields, "field", nil, "Record field as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("property")
	return cmd
}
