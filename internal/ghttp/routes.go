package ghttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gwatchdog"
)

type thresholdsJSON struct {
	TimeoutMs        int64 `json:"timeout_ms"`
	CheckPeriodMs    int64 `json:"check_period_ms"`
	SampleIntervalMs int64 `json:"sample_interval_ms"`
}

func newThresholdsJSON(th gwatchdog.Thresholds) thresholdsJSON {
	return thresholdsJSON{
		TimeoutMs:        th.Timeout.Milliseconds(),
		CheckPeriodMs:    th.CheckPeriod.Milliseconds(),
		SampleIntervalMs: th.SampleInterval.Milliseconds(),
	}
}

type statusJSON struct {
	Thresholds            thresholdsJSON `json:"thresholds"`
	AppState              string         `json:"app_state"`
	Cycles                uint64         `json:"cycles"`
	LastReport            string         `json:"last_report,omitempty"`
	BackgroundCPUTooSmall bool           `json:"background_cpu_too_small"`
	IdleMs                int64          `json:"idle_ms"`
}

type pendingJSON struct {
	ID    string    `json:"id"`
	Kind  string    `json:"kind"`
	Added time.Time `json:"added"`
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, route string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to encode response", "route", route, "err", err)
	}
}

func handleStatus(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	wd := cfg.Watchdog
	return func(w http.ResponseWriter, req *http.Request) {
		s := wd.Status()
		writeJSON(log, w, "status", statusJSON{
			Thresholds:            newThresholdsJSON(s.Thresholds),
			AppState:              s.AppState.String(),
			Cycles:                s.Cycles,
			LastReport:            s.LastReport,
			BackgroundCPUTooSmall: s.BackgroundCPUTooSmall,
			IdleMs:                s.Idle.Milliseconds(),
		})
	}
}

func handleGetThresholds(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	wd := cfg.Watchdog
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSON(log, w, "thresholds", newThresholdsJSON(wd.Status().Thresholds))
	}
}

func handlePutThresholds(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	wd := cfg.Watchdog
	return func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()

		var body struct {
			TimeoutMs int64 `json:"timeout_ms"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "failed to decode request body", http.StatusBadRequest)
			return
		}

		d := time.Duration(body.TimeoutMs) * time.Millisecond
		if !wd.SetTimeout(d) {
			http.Error(w, gwatchdog.InvalidThresholdError{Timeout: d, Reason: "rejected"}.Error(), http.StatusUnprocessableEntity)
			return
		}

		writeJSON(log, w, "thresholds", newThresholdsJSON(wd.Status().Thresholds))
	}
}

func handleLowerThresholds(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	wd := cfg.Watchdog
	return func(w http.ResponseWriter, req *http.Request) {
		if !wd.LowerTimeout() {
			http.Error(w, "no valid low timeout configured", http.StatusConflict)
			return
		}
		writeJSON(log, w, "thresholds/lower", newThresholdsJSON(wd.Status().Thresholds))
	}
}

func handleRecoverThresholds(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	wd := cfg.Watchdog
	return func(w http.ResponseWriter, req *http.Request) {
		if !wd.RecoverTimeout() {
			http.Error(w, "failed to recover hang timeout", http.StatusConflict)
			return
		}
		writeJSON(log, w, "thresholds/recover", newThresholdsJSON(wd.Status().Thresholds))
	}
}

func handlePutAppState(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	wd := cfg.Watchdog
	return func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()

		var body struct {
			State string `json:"state"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "failed to decode request body", http.StatusBadRequest)
			return
		}

		s, err := gwatchdog.ParseAppState(body.State)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		wd.NotifyAppState(s)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePostReport(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	wd := cfg.Watchdog
	return func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()

		var body struct {
			Kind   string `json:"kind"`
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "failed to decode request body", http.StatusBadRequest)
			return
		}

		kind := gdump.KindSelfDefined
		if body.Kind != "" {
			var err error
			kind, err = gdump.ParseKind(body.Kind)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		path, err := wd.GenerateLiveReport(req.Context(), kind, body.Detail)
		if err != nil {
			log.Warn("Failed to generate live report", "err", err)
			http.Error(w, "failed to generate report", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Location", "/reports/latest")
		w.WriteHeader(http.StatusCreated)
		writeJSON(log, w, "reports", map[string]string{"path": path})
	}
}

func handleLatestReport(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	dir := cfg.ReportDir
	return func(w http.ResponseWriter, req *http.Request) {
		if dir == "" {
			http.Error(w, "reports are not written to disk", http.StatusNotFound)
			return
		}

		path, err := gdump.LatestReport(dir)
		if err != nil {
			if errors.Is(err, gdump.ErrNoReports) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			log.Warn("Failed to find latest report", "err", err)
			http.Error(w, "failed to find latest report", http.StatusInternalServerError)
			return
		}

		r, err := gdump.ReadReport(path)
		if err != nil {
			log.Warn("Failed to read report", "path", path, "err", err)
			http.Error(w, "failed to read report", http.StatusInternalServerError)
			return
		}

		writeJSON(log, w, "reports/latest", r)
	}
}

func handlePending(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	ls := cfg.Launches
	return func(w http.ResponseWriter, req *http.Request) {
		if ls == nil {
			http.Error(w, "no launch store configured", http.StatusNotFound)
			return
		}

		pending, err := ls.PendingLaunches(req.Context())
		if err != nil {
			log.Warn("Failed to list pending launches", "err", err)
			http.Error(w, "failed to list pending launches", http.StatusInternalServerError)
			return
		}

		out := make([]pendingJSON, len(pending))
		for i, p := range pending {
			out[i] = pendingJSON{ID: p.ID, Kind: p.Kind, Added: p.Added}
		}
		writeJSON(log, w, "pending", out)
	}
}
