package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/gordian-engine/gstall/gaux/gauxps"
	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gloop"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstackprof"
	"github.com/gordian-engine/gstall/gstore/gsqlite"
	"github.com/gordian-engine/gstall/gwatchdog"
	"github.com/gordian-engine/gstall/gwatchdog/gwmetrics"
	"github.com/gordian-engine/gstall/internal/ghttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	loopName                   = "main"
	loopThread gstack.ThreadID = 1
)

func newRunCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use: "run",

		Short: "Run a demonstration event loop under the stall watchdog",

		Long: `run starts an event loop that processes a steady stream of short tasks,
and optionally injects a long busy task on a fixed period,
so the watchdog can be observed detecting and reporting stalls.
`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			stallEvery, err := cmd.Flags().GetDuration("stall-every")
			if err != nil {
				return err
			}
			stallFor, err := cmd.Flags().GetDuration("stall-for")
			if err != nil {
				return err
			}

			return runWatchdog(cmd.Context(), log, cmd.ErrOrStderr(), rc, stallEvery, stallFor)
		},
	}

	f := cmd.Flags()
	f.Duration("hang-timeout", gwatchdog.DefaultTimeout, "hang timeout, between 400ms and 2s in 100ms steps")
	addReportDirFlag(f)
	addStoreFlag(f)
	f.String("http-addr", "", "listen address for the debug and metrics HTTP server (disabled if empty)")
	f.Duration("stall-every", 10*time.Second, "period between injected stalls (0 disables)")
	f.Duration("stall-for", 3*time.Second, "duration of each injected stall")

	return cmd
}

func addReportDirFlag(f *pflag.FlagSet) {
	f.String("report-dir", "gstall-reports", "directory for report files")
}

func addStoreFlag(f *pflag.FlagSet) {
	f.String("store", "", "SQLite database for the daily quota and pending launch reports (default in-memory)")
}

func runWatchdog(
	ctx context.Context, log *slog.Logger, status io.Writer,
	rc rawConfig, stallEvery, stallFor time.Duration,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := openStore(ctx, rc.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	fw, err := gdump.NewFileWriter(rc.ReportDir, rc.Compress)
	if err != nil {
		return fmt.Errorf("failed to prepare report directory: %w", err)
	}
	pipeline := gdump.NewPipeline(log.With("sys", "dump"), fw, store)

	metrics, err := gauxps.New()
	if err != nil {
		return fmt.Errorf("failed to open process metrics: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promObs, err := gwmetrics.New(reg)
	if err != nil {
		return err
	}

	runner := gloop.NewRunner(log.With("sys", "loop"), loopName, 64)
	act := gloop.NewActivity(gloop.SystemClock{})
	detach := act.Attach(runner)
	defer detach()

	src := gstackprof.New(log.With("sys", "stackprof"))
	src.Bind(loopThread, loopName)

	cfg := rc.watchdogConfig()
	cfg.Activity = act
	cfg.Source = src
	cfg.MainThread = loopThread
	cfg.Pipeline = pipeline
	cfg.Quota = store
	cfg.Metrics = metrics

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runner.Run(gCtx)
		return nil
	})

	wd, err := gwatchdog.New(
		gCtx, log.With("sys", "watchdog"), cfg,
		gwatchdog.WithObserver(promObs),
		gwatchdog.WithObserver(newStatusPrinter(status, rc.Color)),
		gwatchdog.WithCustomInfo(hostInfo{}),
	)
	if err != nil {
		return err
	}
	g.Go(func() error {
		wd.Wait()
		return nil
	})

	if rc.HTTPAddr != "" {
		ln, err := (new(net.ListenConfig)).Listen(gCtx, "tcp", rc.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen for HTTP: %w", err)
		}
		h := ghttp.NewHTTPServer(gCtx, log.With("sys", "http"), ghttp.HTTPServerConfig{
			Listener:  ln,
			Watchdog:  wd,
			Launches:  store,
			ReportDir: fw.Dir(),
			Gatherer:  reg,
		})
		g.Go(func() error {
			h.Wait()
			return nil
		})
		log.Info("HTTP server listening", "addr", ln.Addr().String())
	}

	g.Go(func() error {
		return drive(gCtx, log, runner, act, stallEvery, stallFor)
	})

	return g.Wait()
}

func openStore(ctx context.Context, path string) (*gsqlite.Store, error) {
	if path == "" {
		s, err := gsqlite.NewInMemStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open in-memory store: %w", err)
		}
		return s, nil
	}

	s, err := gsqlite.NewOnDiskStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	return s, nil
}

// drive feeds the loop a short task every 10ms,
// and a busy task lasting stallFor once every stallEvery.
// The first second of tasks counts as the launch phase.
func drive(
	ctx context.Context, log *slog.Logger,
	r *gloop.Runner, act *gloop.Activity,
	stallEvery, stallFor time.Duration,
) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	launchDone := time.After(time.Second)

	var stalls <-chan time.Time
	if stallEvery > 0 {
		t := time.NewTicker(stallEvery)
		defer t.Stop()
		stalls = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-launchDone:
			r.EndLaunch()
			act.EndLaunch()
			log.Info("Launch phase complete")

		case <-tick.C:
			if !r.Submit(ctx, shortTask) {
				return nil
			}

		case <-stalls:
			log.Info("Injecting stall", "duration", stallFor)
			if !r.Submit(ctx, func() { spin(stallFor) }) {
				return nil
			}
		}
	}
}

func shortTask() {
	spin(time.Millisecond)
}

// spin keeps the loop busy for d.
//
//go:noinline
func spin(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

type hostInfo struct{}

func (hostInfo) CustomInfo(gdump.Kind) map[string]string {
	host, _ := os.Hostname()
	return map[string]string{
		"go_version": runtime.Version(),
		"goos":       runtime.GOOS,
		"goarch":     runtime.GOARCH,
		"host":       host,
		"pid":        fmt.Sprint(os.Getpid()),
	}
}

// statusPrinter writes one colored line per notable watchdog event.
type statusPrinter struct {
	out io.Writer

	red, yellow, green, cyan func(a ...any) string
}

func newStatusPrinter(out io.Writer, useColor bool) *statusPrinter {
	colors := []*color.Color{
		color.New(color.FgRed, color.Bold),
		color.New(color.FgYellow),
		color.New(color.FgGreen),
		color.New(color.FgCyan),
	}
	if !useColor {
		for _, c := range colors {
			c.DisableColor()
		}
	}

	return &statusPrinter{
		out:    out,
		red:    colors[0].SprintFunc(),
		yellow: colors[1].SprintFunc(),
		green:  colors[2].SprintFunc(),
		cyan:   colors[3].SprintFunc(),
	}
}

func (p *statusPrinter) OnEvent(e gwatchdog.Event) {
	var line string
	switch e.Type {
	case gwatchdog.EventMainThreadHang:
		line = p.red("STALL") + fmt.Sprintf(" %s blocked %s (threshold %s)", e.Kind, e.Blocked.Round(time.Millisecond), e.Threshold)
	case gwatchdog.EventDumpFiltered:
		line = p.yellow("FILTERED") + fmt.Sprintf(" %s: %s", e.Kind, e.Reason)
	case gwatchdog.EventDumpComplete:
		line = p.green("REPORT") + " " + e.Path
	case gwatchdog.EventLoopHang:
		line = p.yellow("SLOW") + fmt.Sprintf(" iteration took %s", e.Blocked.Round(time.Millisecond))
	case gwatchdog.EventCPUSustainedHigh:
		line = p.red("CPU") + fmt.Sprintf(" sustained %.1f%%", e.CPU)
	case gwatchdog.EventThermalElevated:
		line = p.red("THERMAL") + " " + e.Thermal.String()
	case gwatchdog.EventMemoryExcessive:
		line = p.red("MEMORY") + fmt.Sprintf(" %d MiB", e.Footprint>>20)
	case gwatchdog.EventLaunchOrphaned:
		line = p.cyan("ORPHAN") + " launch report " + e.Orphan.ID
	default:
		return
	}
	fmt.Fprintln(p.out, line)
}
