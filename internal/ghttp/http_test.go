package ghttp_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstackagg"
	"github.com/gordian-engine/gstall/gstore"
	"github.com/gordian-engine/gstall/gstore/gmemstore"
	"github.com/gordian-engine/gstall/gwatchdog"
	"github.com/gordian-engine/gstall/internal/ghttp"
	"github.com/gordian-engine/gstall/internal/gtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// fakeWatchdog validates timeouts like the real watchdog
// and writes live reports through a FileWriter.
type fakeWatchdog struct {
	mu       sync.Mutex
	th       gwatchdog.Thresholds
	state    gwatchdog.AppState
	fw       *gdump.FileWriter
	lastPath string
}

func (f *fakeWatchdog) Status() gwatchdog.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gwatchdog.Status{Thresholds: f.th, AppState: f.state, Cycles: 7, LastReport: f.lastPath, Idle: 1500 * time.Millisecond}
}

func (f *fakeWatchdog) SetTimeout(d time.Duration) bool {
	th, err := gwatchdog.NewThresholds(d, gwatchdog.DefaultSampleInterval)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.th = th
	return true
}

func (f *fakeWatchdog) LowerTimeout() bool   { return f.SetTimeout(gwatchdog.DefaultLowTimeout) }
func (f *fakeWatchdog) RecoverTimeout() bool { return f.SetTimeout(gwatchdog.DefaultTimeout) }

func (f *fakeWatchdog) NotifyAppState(s gwatchdog.AppState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeWatchdog) GenerateLiveReport(ctx context.Context, kind gdump.Kind, detail string) (string, error) {
	p := gdump.NewPayload(kind, time.Now())
	p.Detail = detail
	p.Point = gstackagg.PointStack{Stack: gstack.Stack{0x10, 0x20}, Repeat: 3}
	path, err := f.fw.WriteReport(ctx, p)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPath = path
	return path, nil
}

func startServer(t *testing.T, cfg ghttp.HTTPServerConfig) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	ln, err := (new(net.ListenConfig)).Listen(ctx, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.Listener = ln

	h := ghttp.NewHTTPServer(ctx, gtest.NewLogger(t), cfg)
	t.Cleanup(func() {
		cancel()
		h.Wait()
	})

	return "http://" + ln.Addr().String()
}

func newFakeWatchdog(t *testing.T) *fakeWatchdog {
	t.Helper()

	fw, err := gdump.NewFileWriter(t.TempDir(), true)
	require.NoError(t, err)

	th, err := gwatchdog.NewThresholds(gwatchdog.DefaultTimeout, gwatchdog.DefaultSampleInterval)
	require.NoError(t, err)

	return &fakeWatchdog{th: th, fw: fw}
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTPServer_thresholds(t *testing.T) {
	t.Parallel()

	wd := newFakeWatchdog(t)
	base := startServer(t, ghttp.HTTPServerConfig{Watchdog: wd})

	t.Run("get", func(t *testing.T) {
		resp := do(t, "GET", base+"/thresholds", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var m map[string]int64
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
		require.Equal(t, map[string]int64{
			"timeout_ms":         2000,
			"check_period_ms":    1000,
			"sample_interval_ms": 50,
		}, m)
	})

	t.Run("put rejected", func(t *testing.T) {
		resp := do(t, "PUT", base+"/thresholds", `{"timeout_ms":1250}`)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("put malformed", func(t *testing.T) {
		resp := do(t, "PUT", base+"/thresholds", `{`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("put accepted", func(t *testing.T) {
		resp := do(t, "PUT", base+"/thresholds", `{"timeout_ms":1200}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var m map[string]int64
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
		require.Equal(t, int64(1200), m["timeout_ms"])
		require.Equal(t, int64(600), m["check_period_ms"])
	})

	t.Run("lower and recover", func(t *testing.T) {
		resp := do(t, "POST", base+"/thresholds/lower", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, gwatchdog.DefaultLowTimeout, wd.Status().Thresholds.Timeout)

		resp = do(t, "POST", base+"/thresholds/recover", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, gwatchdog.DefaultTimeout, wd.Status().Thresholds.Timeout)
	})
}

func TestHTTPServer_appState(t *testing.T) {
	t.Parallel()

	wd := newFakeWatchdog(t)
	base := startServer(t, ghttp.HTTPServerConfig{Watchdog: wd})

	resp := do(t, "PUT", base+"/app_state", `{"state":"background"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, gwatchdog.AppBackground, wd.Status().AppState)

	resp = do(t, "PUT", base+"/app_state", `{"state":"asleep"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, "GET", base+"/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s struct {
		AppState string `json:"app_state"`
		Cycles   uint64 `json:"cycles"`
		IdleMs   int64  `json:"idle_ms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	require.Equal(t, "background", s.AppState)
	require.Equal(t, uint64(7), s.Cycles)
	require.Equal(t, int64(1500), s.IdleMs)
}

func TestHTTPServer_reports(t *testing.T) {
	t.Parallel()

	wd := newFakeWatchdog(t)
	base := startServer(t, ghttp.HTTPServerConfig{
		Watchdog:  wd,
		ReportDir: wd.fw.Dir(),
	})

	resp := do(t, "GET", base+"/reports/latest", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, "POST", base+"/reports", `{"kind":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, "POST", base+"/reports", `{"detail":"from test"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, wd.Status().LastReport, created["path"])

	resp = do(t, "GET", base+"/reports/latest", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var r gdump.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	require.Equal(t, gdump.KindSelfDefined.String(), r.Kind)
	require.Equal(t, "from test", r.Detail)
	require.Equal(t, []uint64{0x10, 0x20}, r.PointStack)
}

func TestHTTPServer_pending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := gmemstore.NewStore()
	added := time.Date(2026, 10, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.AddPendingLaunch(ctx, gstore.PendingLaunch{
		ID: "abc", Kind: "launch_block", Added: added,
	}))

	t.Run("configured", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, ghttp.HTTPServerConfig{
			Watchdog: newFakeWatchdog(t),
			Launches: store,
		})

		resp := do(t, "GET", base+"/pending", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got []struct {
			ID    string    `json:"id"`
			Kind  string    `json:"kind"`
			Added time.Time `json:"added"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got, 1)
		require.Equal(t, "abc", got[0].ID)
		require.True(t, added.Equal(got[0].Added))
	})

	t.Run("unconfigured", func(t *testing.T) {
		t.Parallel()

		base := startServer(t, ghttp.HTTPServerConfig{Watchdog: newFakeWatchdog(t)})
		resp := do(t, "GET", base+"/pending", "")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHTTPServer_metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "gstall_test_total", Help: "Test counter."})
	reg.MustRegister(c)
	c.Add(3)

	base := startServer(t, ghttp.HTTPServerConfig{
		Watchdog: newFakeWatchdog(t),
		Gatherer: reg,
	})

	resp := do(t, "GET", base+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(b), "gstall_test_total 3")
}
