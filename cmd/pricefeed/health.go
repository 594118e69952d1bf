package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/pricefeed/internal/feed"
	"github.com/rickgao/pricefeed/internal/recorder"
	"github.com/rickgao/pricefeed/internal/version"
)

type statusSource interface {
	Statuses() []feed.Status
}

type healthDeps struct {
	sessions     statusSource
	cacheBackend string
	pingCache    func(ctx context.Context) error
	recorder     *recorder.Recorder // nil when disabled
	logger       *slog.Logger
}

type statusResponse struct {
	Version  version.Info    `json:"version"`
	Sessions []feed.Status   `json:"sessions"`
	Recorder *recorder.Stats `json:"recorder,omitempty"`
}

// newHealthHandler serves /healthz and /status.
func newHealthHandler(d healthDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if d.pingCache != nil {
			if err := d.pingCache(ctx); err != nil {
				// The feed keeps running without a cache.
				health.Status = "degraded"
				health.Components["cache"] = map[string]string{
					"backend": d.cacheBackend,
					"status":  "unreachable",
					"error":   err.Error(),
				}
			} else {
				health.Components["cache"] = map[string]string{
					"backend": d.cacheBackend,
					"status":  "ok",
				}
			}
		}

		statuses := d.sessions.Statuses()
		live := 0
		for _, s := range statuses {
			if s.State == feed.StateLive {
				live++
			}
		}
		health.Components["sessions"] = map[string]int{
			"active": len(statuses),
			"live":   live,
		}
		if len(statuses) == 0 {
			health.Status = "unhealthy"
		} else if live < len(statuses) && health.Status == "healthy" {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			d.logger.Debug("write health response", "error", err)
		}
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Version:  version.Get(),
			Sessions: d.sessions.Statuses(),
		}
		if d.recorder != nil {
			st := d.recorder.Stats()
			resp.Recorder = &st
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			d.logger.Debug("write status response", "error", err)
		}
	})

	return mux
}
