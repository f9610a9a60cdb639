package main

import (
	"fmt"

	"github.com/httprunner/FieldSync/pkg/records"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newUpdateCmd(root *rootOptions) *cobra.Command {
	var flagFields []string
	cmd := &cobra.Command{
		Use:     "update <record-path>",
		Short:   "Merge fields into a record that is already remote",
		Example: `  fieldsync update properties/P1/service_orders/recXYZ --field status=closed`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := records.ParseFieldArgs(flagFields)
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				return errors.New("at least one --field key=value is required")
			}
			agent, err := root.newAgent()
			if err != nil {
				return err
			}
			defer agent.Close()

			if err := agent.UpdateRemote(cmd.Context(), args[0], fields); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&flagFields, "field", nil, "Field as key=value (repeatable)")
	return cmd
}
