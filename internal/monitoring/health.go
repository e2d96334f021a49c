package monitoring

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// HealthStore is the store surface the health monitor uses.
type HealthStore interface {
	Ping(ctx context.Context) error
	LatestSignalCreatedAt(ctx context.Context) (*time.Time, error)
	SaveHealthStatus(ctx context.Context, hs model.HealthStatus) error
	AppendAlert(ctx context.Context, a model.Alert) error
}

// Configurable is any external client that can report whether it has
// credentials. The check never makes a network call.
type Configurable interface {
	Configured() bool
}

// HealthMonitor periodically checks store connectivity, client
// configuration and data freshness. It never touches scheduling.
type HealthMonitor struct {
	store     HealthStore
	clients   map[string]Configurable
	interval  time.Duration
	freshness time.Duration
	alerter   *Alerter
	nowFunc   func() time.Time
}

// NewHealthMonitor creates a health monitor over the named clients.
func NewHealthMonitor(st HealthStore, cfg config.HealthConfig, clients map[string]Configurable, alerter *Alerter) *HealthMonitor {
	interval := time.Duration(cfg.IntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	freshness := time.Duration(cfg.FreshnessHours) * time.Hour
	if freshness <= 0 {
		freshness = 24 * time.Hour
	}
	return &HealthMonitor{
		store:     st,
		clients:   clients,
		interval:  interval,
		freshness: freshness,
		alerter:   alerter,
		nowFunc:   time.Now,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (h *HealthMonitor) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.health"))
	log.Info("starting health monitor",
		zap.Duration("interval", h.interval),
		zap.Duration("freshness", h.freshness),
	)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health monitor stopped")
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Check runs every probe once, persists the status and appends a
// health_alert when anything failed.
func (h *HealthMonitor) Check(ctx context.Context) model.HealthStatus {
	log := zap.L().With(zap.String("component", "monitoring.health"))
	now := h.nowFunc().UTC()

	checks := []model.HealthCheck{h.checkStore(ctx)}
	checks = append(checks, h.checkClients()...)
	checks = append(checks, h.checkFreshness(ctx, now))

	status := model.HealthStatus{
		ID:        uuid.New().String(),
		CheckedAt: now,
		Healthy:   true,
		Checks:    checks,
	}
	for _, c := range checks {
		if !c.OK {
			status.Healthy = false
		}
	}

	if err := h.store.SaveHealthStatus(ctx, status); err != nil {
		log.Error("monitoring: save health status", zap.Error(err))
	}
	if status.Healthy {
		log.Debug("health check passed")
		return status
	}

	failed := status.Failed()
	names := make([]string, 0, len(failed))
	for _, c := range failed {
		names = append(names, c.Name)
	}
	alert := model.Alert{
		ID:       uuid.New().String(),
		Type:     model.AlertHealth,
		Severity: "high",
		Message:  "health check failed: " + strings.Join(names, ", "),
		Details: map[string]any{
			"failed": names,
			"checks": failed,
		},
		Timestamp: now,
	}
	log.Warn("health check failed", zap.Strings("failed", names))
	if err := h.store.AppendAlert(ctx, alert); err != nil {
		log.Error("monitoring: append health alert", zap.Error(err))
	}
	h.alerter.SendAlerts(ctx, []model.Alert{alert})
	return status
}

func (h *HealthMonitor) checkStore(ctx context.Context) model.HealthCheck {
	if err := h.store.Ping(ctx); err != nil {
		return model.HealthCheck{Name: "store", Detail: err.Error()}
	}
	return model.HealthCheck{Name: "store", OK: true}
}

func (h *HealthMonitor) checkClients() []model.HealthCheck {
	names := make([]string, 0, len(h.clients))
	for name := range h.clients {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]model.HealthCheck, 0, len(names))
	for _, name := range names {
		c := model.HealthCheck{Name: "client:" + name, OK: h.clients[name] != nil && h.clients[name].Configured()}
		if !c.OK {
			c.Detail = "not configured"
		}
		out = append(out, c)
	}
	return out
}

func (h *HealthMonitor) checkFreshness(ctx context.Context, now time.Time) model.HealthCheck {
	const name = "freshness"
	latest, err := h.store.LatestSignalCreatedAt(ctx)
	if err != nil {
		return model.HealthCheck{Name: name, Detail: err.Error()}
	}
	if latest == nil {
		return model.HealthCheck{Name: name, Detail: "no signals stored"}
	}
	age := now.Sub(*latest)
	if age > h.freshness {
		return model.HealthCheck{Name: name, Detail: fmt.Sprintf("newest signal is %s old, limit %s", age.Round(time.Minute), h.freshness)}
	}
	return model.HealthCheck{Name: name, OK: true, Detail: fmt.Sprintf("newest signal is %s old", age.Round(time.Second))}
}
