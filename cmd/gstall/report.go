package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/gordian-engine/gstall/gdump"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

func newReportCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use: "report [PATH]",

		Short: "Summarize a report file, or the latest report in the report directory",

		Args: cobra.RangeArgs(0, 1),

		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				rc, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				path, err = gdump.LatestReport(rc.ReportDir)
				if err != nil {
					return fmt.Errorf("failed to find latest report in %s: %w", rc.ReportDir, err)
				}
			}

			r, err := gdump.ReadReport(path)
			if err != nil {
				return err
			}

			log.Debug("Read report", "path", path)
			return printReport(cmd.OutOrStdout(), r)
		},
	}

	addReportDirFlag(cmd.Flags())

	return cmd
}

func printReport(out io.Writer, r gdump.Report) error {
	summary := tablewriter.NewWriter(out)
	summary.Header("Field", "Value")
	summary.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	rows := [][]string{
		{"id", r.ID},
		{"kind", fmt.Sprintf("%s (%d)", r.Kind, r.Code)},
		{"time", r.Time.UTC().Format(time.RFC3339)},
	}
	if gdump.Kind(r.Code).IsStall() {
		rows = append(rows, []string{"blocked", (time.Duration(r.BlockedMs) * time.Millisecond).String()})
	}
	rows = append(rows,
		[]string{"threshold", (time.Duration(r.ThresholdMs) * time.Millisecond).String()},
		[]string{"repeat", strconv.Itoa(r.Repeat)},
		[]string{"threads", strconv.Itoa(len(r.Threads))},
	)
	if r.Detail != "" {
		rows = append(rows, []string{"detail", r.Detail})
	}
	for k, v := range r.CustomInfo {
		rows = append(rows, []string{"info." + k, v})
	}
	if err := summary.Bulk(rows); err != nil {
		return err
	}
	if err := summary.Render(); err != nil {
		return err
	}

	if len(r.PointStack) == 0 {
		return nil
	}

	stack := tablewriter.NewWriter(out)
	stack.Header("Frame", "Address", "Repeats")
	stack.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	frames := make([][]string, len(r.PointStack))
	for i, a := range r.PointStack {
		repeats := ""
		if i < len(r.FrameRepeats) {
			repeats = strconv.Itoa(r.FrameRepeats[i])
		}
		frames[i] = []string{strconv.Itoa(i), fmt.Sprintf("0x%x", a), repeats}
	}
	if err := stack.Bulk(frames); err != nil {
		return err
	}
	return stack.Render()
}
