package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/orchestrator"
	"github.com/boazzati/AFH-Platform-sub001/internal/store"
)

// controller is the orchestrator surface the HTTP handlers drive.
type controller interface {
	Status(ctx context.Context) orchestrator.Status
	TriggerCollection(ctx context.Context, name string) (*model.CollectionRun, error)
}

// opsReader is the read-only store surface the HTTP handlers need.
type opsReader interface {
	LatestHealthStatus(ctx context.Context) (*model.HealthStatus, error)
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]model.Alert, error)
}

// newRouter builds the control API.
func newRouter(ctrl controller, ops opsReader, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth(ops))
	r.Get("/status", handleStatus(ctrl))
	r.Post("/trigger/{cadence}", handleTrigger(ctrl))
	r.Get("/alerts", handleAlerts(ops))
	return r
}

func handleHealth(ops opsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hs, err := ops.LatestHealthStatus(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if hs == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
			return
		}
		code := http.StatusOK
		if !hs.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, hs)
	}
}

func handleStatus(ctrl controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctrl.Status(r.Context()))
	}
}

// handleTrigger runs the cadence synchronously and returns the finished run.
func handleTrigger(ctrl controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "cadence")
		run, err := ctrl.TriggerCollection(r.Context(), name)
		switch {
		case errors.Is(err, model.ErrUnknownCadence):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, model.ErrCadenceBusy):
			writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, model.ErrNotRunning):
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleAlerts(ops opsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.AlertFilter{Type: model.AlertType(q.Get("type"))}
		if s := q.Get("since"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "since must be a duration such as 24h")
				return
			}
			filter.Since = time.Now().Add(-d)
		}
		alerts, err := ops.ListAlerts(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if alerts == nil {
			alerts = []model.Alert{}
		}
		writeJSON(w, http.StatusOK, alerts)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
