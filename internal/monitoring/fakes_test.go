package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/store"
)

type memStore struct {
	mu       sync.Mutex
	metrics  *model.MetricsSnapshot
	alerts   []model.Alert
	health   []model.HealthStatus
	runs     []model.CollectionRun
	latest   *time.Time
	pingErr  error
	readErr  error
	writeErr error
}

func (m *memStore) GetMetrics(context.Context) (*model.MetricsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.metrics == nil {
		return &model.MetricsSnapshot{}, nil
	}
	cp := *m.metrics
	return &cp, nil
}

func (m *memStore) SetMetrics(_ context.Context, snap model.MetricsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.metrics = &snap
	return nil
}

func (m *memStore) AppendAlert(_ context.Context, a model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) LatestSignalCreatedAt(context.Context) (*time.Time, error) {
	if m.pingErr != nil {
		return nil, errors.New("store unreachable")
	}
	return m.latest, nil
}

func (m *memStore) SaveHealthStatus(_ context.Context, hs model.HealthStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = append(m.health, hs)
	return nil
}

func (m *memStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.CollectionRun, error) {
	return m.runs, nil
}

func (m *memStore) alertTypes() []model.AlertType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AlertType, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, a.Type)
	}
	return out
}

type staticClient bool

func (c staticClient) Configured() bool { return bool(c) }
