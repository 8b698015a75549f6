// Package ghttp serves the watchdog's debug and metrics endpoints.
package ghttp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gstore"
	"github.com/gordian-engine/gstall/gwatchdog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Watchdog is the subset of [*gwatchdog.Watchdog] used by the HTTP server.
type Watchdog interface {
	Status() gwatchdog.Status
	SetTimeout(time.Duration) bool
	LowerTimeout() bool
	RecoverTimeout() bool
	NotifyAppState(gwatchdog.AppState)
	GenerateLiveReport(context.Context, gdump.Kind, string) (string, error)
}

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Watchdog Watchdog

	// Optional. Without it, /pending responds 404.
	Launches gstore.LaunchStore

	// Directory of report files. Without it, /reports/latest responds 404.
	ReportDir string

	// Optional. Without it, /metrics is not routed.
	Gatherer prometheus.Gatherer
}

func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},

		ReadHeaderTimeout: 5 * time.Second,
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/status", handleStatus(log, cfg)).Methods("GET")

	r.HandleFunc("/thresholds", handleGetThresholds(log, cfg)).Methods("GET")
	r.HandleFunc("/thresholds", handlePutThresholds(log, cfg)).Methods("PUT")
	r.HandleFunc("/thresholds/lower", handleLowerThresholds(log, cfg)).Methods("POST")
	r.HandleFunc("/thresholds/recover", handleRecoverThresholds(log, cfg)).Methods("POST")

	r.HandleFunc("/app_state", handlePutAppState(log, cfg)).Methods("PUT")

	r.HandleFunc("/reports", handlePostReport(log, cfg)).Methods("POST")
	r.HandleFunc("/reports/latest", handleLatestReport(log, cfg)).Methods("GET")

	r.HandleFunc("/pending", handlePending(log, cfg)).Methods("GET")

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}
