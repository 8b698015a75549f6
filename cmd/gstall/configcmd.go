package main

import (
	"log/slog"

	"github.com/gordian-engine/gstall/gwatchdog"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newConfigCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use: "config",

		Short: "Print the effective configuration and validate it",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if _, err := gwatchdog.NewThresholds(rc.HangTimeout, rc.SampleInterval); err != nil {
				log.Warn("Configured thresholds are invalid", "err", err)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Key", "Value")
			if err := table.Bulk(rc.rows()); err != nil {
				return err
			}
			return table.Render()
		},
	}

	return cmd
}
