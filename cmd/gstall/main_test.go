package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstackagg"
	"github.com/gordian-engine/gstall/gstore"
	"github.com/gordian-engine/gstall/gstore/gsqlite"
	"github.com/gordian-engine/gstall/gwatchdog"
	"github.com/gordian-engine/gstall/internal/gtest"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	root := NewRootCmd(gtest.NewLogger(t))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	require.NoError(t, root.ExecuteContext(context.Background()))
	return out.String()
}

func TestConfigCmd_file(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gstall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hang-timeout: 1200ms\ndaily-dump-limit: 5\n"), 0o600))

	out := execute(t, "config", "--config", path)
	require.Contains(t, out, "1.2s")
	require.Regexp(t, `daily-dump-limit\W+5\W`, out)
}

func TestConfigCmd_env(t *testing.T) {
	// Not parallel: modifies the environment.
	t.Setenv("GSTALL_SAMPLE_INTERVAL", "100ms")

	path := filepath.Join(t.TempDir(), "gstall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample-interval: 25ms\n"), 0o600))

	out := execute(t, "config", "--config", path)
	require.Contains(t, out, "100ms")
	require.NotContains(t, out, "25ms")
}

func TestRawConfig_watchdogConfig(t *testing.T) {
	t.Parallel()

	rc := rawConfig{
		HangTimeout:       1500 * time.Millisecond,
		SampleInterval:    50 * time.Millisecond,
		DailyDumpLimit:    3,
		CPUHighDump:       true,
		MemoryThresholdMB: 256,
	}
	cfg := rc.watchdogConfig()
	require.Equal(t, 1500*time.Millisecond, cfg.HangTimeout)
	require.Equal(t, 3, cfg.DailyDumpLimit)
	require.True(t, cfg.CPUHighDump)
	require.Equal(t, uint64(256), cfg.MemoryThresholdMB)

	// Stack sampling is always on for the CLI.
	require.True(t, cfg.EnableStackSampling)
}

func TestPendingCmd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "gstall.sqlite")

	s, err := gsqlite.NewOnDiskStore(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, s.AddPendingLaunch(ctx, gstore.PendingLaunch{
		ID:    "d7c1f0e2",
		Kind:  gdump.KindLaunchBlock.String(),
		Added: time.Date(2026, 10, 3, 4, 5, 6, 0, time.UTC),
	}))
	require.NoError(t, s.Close())

	out := execute(t, "pending", "--store", dbPath)
	require.Contains(t, out, "d7c1f0e2")
	require.Contains(t, out, "launch_block")
	require.Contains(t, out, "2026-10-03T04:05:06Z")
}

func TestReportCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fw, err := gdump.NewFileWriter(dir, true)
	require.NoError(t, err)

	p := gdump.NewPayload(gdump.KindMainThreadBlock, time.Now())
	p.Blocked = 2500 * time.Millisecond
	p.Threshold = 2 * time.Second
	p.Point = gstackagg.PointStack{
		Stack:        gstack.Stack{0xabc0, 0xdef0},
		Repeat:       9,
		FrameRepeats: []int{9, 12},
	}
	_, err = fw.WriteReport(context.Background(), p)
	require.NoError(t, err)

	out := execute(t, "report", "--report-dir", dir)
	require.Contains(t, out, "main_thread_block (2001)")
	require.Contains(t, out, "2.5s")
	require.Contains(t, out, "0xabc0")
	require.Contains(t, out, "0xdef0")
}

func TestReportCmd_auxiliaryKind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fw, err := gdump.NewFileWriter(dir, false)
	require.NoError(t, err)

	p := gdump.NewPayload(gdump.KindCPUBlock, time.Now())
	p.Threshold = 2 * time.Second
	path, err := fw.WriteReport(context.Background(), p)
	require.NoError(t, err)

	out := execute(t, "report", path)
	require.Contains(t, out, "cpu_block (2003)")
	require.NotContains(t, out, "blocked")
}

func TestStatusPrinter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := newStatusPrinter(&buf, false)

	p.OnEvent(gwatchdog.Event{Type: gwatchdog.EventEnterNextCheck, Kind: gdump.KindUnlag})
	p.OnEvent(gwatchdog.Event{
		Type:      gwatchdog.EventMainThreadHang,
		Kind:      gdump.KindMainThreadBlock,
		Blocked:   2345 * time.Millisecond,
		Threshold: 2 * time.Second,
	})
	p.OnEvent(gwatchdog.Event{Type: gwatchdog.EventDumpComplete, Path: "/tmp/r.json"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"STALL main_thread_block blocked 2.345s (threshold 2s)",
		"REPORT /tmp/r.json",
	}, lines)
}
