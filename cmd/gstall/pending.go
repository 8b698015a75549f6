package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gordian-engine/gstall/gstore"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

func newPendingCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use: "pending",

		Short: "List launch-stall reports that were started but never completed",

		Long: `pending lists entries of the launch report side file.
An entry left behind by a previous process means that process was killed
while writing a launch-stall report. A running watchdog reconciles these on start.
`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if rc.Store == "" {
				return fmt.Errorf("pending requires an on-disk store; set --store or GSTALL_STORE")
			}

			ctx := cmd.Context()
			s, err := openStore(ctx, rc.Store)
			if err != nil {
				return err
			}
			defer s.Close()

			pending, err := s.PendingLaunches(ctx)
			if err != nil {
				return fmt.Errorf("failed to list pending launches: %w", err)
			}

			if len(pending) == 0 {
				log.Info("No pending launch reports", "store", rc.Store)
				return nil
			}
			return printPending(cmd.OutOrStdout(), pending)
		},
	}

	addStoreFlag(cmd.Flags())

	return cmd
}

func printPending(out io.Writer, pending []gstore.PendingLaunch) error {
	table := tablewriter.NewWriter(out)
	table.Header("ID", "Kind", "Added")
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	data := make([][]string, len(pending))
	for i, p := range pending {
		data[i] = []string{p.ID, p.Kind, p.Added.UTC().Format(time.RFC3339)}
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
