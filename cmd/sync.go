package main

import (
	"encoding/json"
	"fmt"

	"github.com/httprunner/FieldSync/pkg/syncer"
	"github.com/spf13/cobra"
)

func newSyncCmd(root *rootOptions) *cobra.Command {
	var flagJSON bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := root.newAgent()
			if err != nil {
				return err
			}
			defer agent.Close()

			agent.CheckConnectivity(cmd.Context())
			report, err := agent.SyncNow(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(cmd, report, flagJSON)
		},
	}
	cmd.Flags().BoolVar(&flagJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, report syncer.Report, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		view := map[string]any{
			"skipped":        report.Skipped,
			"reason":         report.Reason,
			"synced":         report.Synced,
			"alreadyRemote":  report.AlreadyRemote,
			"stillPending":   report.StillPending,
			"failed":         report.Failed,
			"duplicates":     report.Duplicates,
			"needsAttention": report.NeedsAttention,
			"elapsedMs":      report.Elapsed.Milliseconds(),
		}
		failures := make([]map[string]any, 0, len(report.Failures))
		for _, f := range report.Failures {
			item := map[string]any{
				"localId":    f.LocalID,
				"targetPath": f.TargetPath,
				"stage":      string(f.Stage),
				"permanent":  f.Permanent,
			}
			if f.Err != nil {
				item["error"] = f.Err.Error()
			}
			failures = append(failures, item)
		}
		view["failures"] = failures
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	if report.Skipped {
		_, err := fmt.Fprintf(out, "skipped: %s\n", report.Reason)
		return err
	}
	fmt.Fprintf(out, "synced=%d already_remote=%d still_pending=%d failed=%d needs_attention=%d duplicates=%d\n",
		report.Synced, report.AlreadyRemote, report.StillPending, report.Failed, report.NeedsAttention, report.Duplicates)
	for _, f := range report.Failures {
		mark := ""
		if f.Permanent {
			mark = " [needs attention]"
		}
		fmt.Fprintf(out, "  %s %s (%s)%s: %v\n", f.LocalID, f.TargetPath, f.Stage, mark, f.Err)
	}
	return nil
}
