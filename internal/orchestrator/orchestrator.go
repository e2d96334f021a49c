// Package orchestrator schedules collection runs per cadence and exposes the
// start, stop, trigger and status control surface.
package orchestrator

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// State is the lifecycle state of an Orchestrator.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// ErrNotStopped is returned by Start when the orchestrator is already started.
var ErrNotStopped = eris.New("orchestrator is not stopped")

// Executor runs one collection for a cadence.
type Executor interface {
	Execute(ctx context.Context, cadence model.Cadence) *model.CollectionRun
}

// Metrics is the metrics surface the orchestrator reads and flushes.
type Metrics interface {
	Snapshot(ctx context.Context) (model.MetricsSnapshot, error)
	Flush(ctx context.Context) error
}

// HealthLoop runs until its context is cancelled.
type HealthLoop interface {
	Run(ctx context.Context)
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	IsRunning      bool                  `json:"is_running"`
	State          State                 `json:"state"`
	ActiveCadences []string              `json:"active_cadences"`
	InFlight       []string              `json:"in_flight"`
	NextRuns       map[string]time.Time  `json:"next_runs,omitempty"`
	Metrics        model.MetricsSnapshot `json:"metrics"`
}

const (
	// defaultRunTimeout applies to cadences that do not set one.
	defaultRunTimeout = 30 * time.Minute
	// flushTimeout bounds the final metrics flush, which runs even after
	// the stop deadline has passed.
	flushTimeout = 10 * time.Second
)

// Orchestrator owns one timer and one in-flight flag per cadence. Runs of
// different cadences may overlap; runs of the same cadence never do.
type Orchestrator struct {
	cadences map[string]model.Cadence
	order    []string
	loc      *time.Location
	exec     Executor
	metrics  Metrics
	health   HealthLoop
	inFlight map[string]*atomic.Bool

	mu           sync.Mutex
	state        State
	cron         *cron.Cron
	entries      map[string]cron.EntryID
	baseCtx      context.Context
	healthCancel context.CancelFunc
	healthDone   chan struct{}
	runs         sync.WaitGroup
}

// New builds an Orchestrator in the stopped state. health may be nil.
func New(cfg *config.Config, exec Executor, metrics Metrics, health HealthLoop) *Orchestrator {
	o := &Orchestrator{
		cadences: make(map[string]model.Cadence, len(cfg.Cadences)),
		loc:      cfg.Scheduler.Location(),
		exec:     exec,
		metrics:  metrics,
		health:   health,
		inFlight: make(map[string]*atomic.Bool, len(cfg.Cadences)),
		state:    StateStopped,
	}
	for _, c := range cfg.Cadences {
		o.cadences[c.Name] = c
		o.order = append(o.order, c.Name)
		o.inFlight[c.Name] = &atomic.Bool{}
	}
	return o
}

func (o *Orchestrator) logger() *zap.Logger {
	return zap.L().With(zap.String("component", "orchestrator"))
}

// Start registers a timer per enabled cadence and starts the health loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateStopped {
		return eris.Wrapf(ErrNotStopped, "start: state is %s", o.state)
	}
	o.state = StateStarting
	log := o.logger()

	c := cron.New(
		cron.WithLocation(o.loc),
		cron.WithChain(cron.Recover(cronLogger{log: log.Sugar()})),
		cron.WithLogger(cronLogger{log: log.Sugar()}),
	)
	entries := make(map[string]cron.EntryID)
	for _, name := range o.order {
		cad := o.cadences[name]
		if !cad.Enabled {
			continue
		}
		id, err := c.AddFunc(cad.TriggerSpec, func() { o.fire(cad) })
		if err != nil {
			o.state = StateStopped
			return eris.Wrapf(err, "start: cadence %s: invalid trigger spec %q", name, cad.TriggerSpec)
		}
		entries[name] = id
	}

	o.cron = c
	o.entries = entries
	o.baseCtx = context.WithoutCancel(ctx)

	if o.health != nil {
		hctx, cancel := context.WithCancel(o.baseCtx)
		done := make(chan struct{})
		o.healthCancel = cancel
		o.healthDone = done
		go func() {
			defer close(done)
			o.health.Run(hctx)
		}()
	}

	c.Start()
	o.state = StateRunning
	log.Info("orchestrator started", zap.Int("cadences", len(entries)))
	return nil
}

// StartManual moves the orchestrator to running without registering timers
// or starting the health loop. Runs start only through TriggerCollection.
func (o *Orchestrator) StartManual(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateStopped {
		return eris.Wrapf(ErrNotStopped, "start: state is %s", o.state)
	}
	o.baseCtx = context.WithoutCancel(ctx)
	o.state = StateRunning
	o.logger().Info("orchestrator started without timers")
	return nil
}

// Stop cancels every pending timer and the health loop, waits for in-flight
// runs to finish and flushes metrics. In-flight runs are never interrupted;
// if ctx ends first, Stop returns its error and the runs finish on their own.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopping
	c := o.cron
	healthCancel, healthDone := o.healthCancel, o.healthDone
	o.mu.Unlock()

	log := o.logger()
	log.Info("orchestrator stopping")

	if c != nil {
		c.Stop()
	}
	if healthCancel != nil {
		healthCancel()
		<-healthDone
	}

	drained := make(chan struct{})
	go func() {
		o.runs.Wait()
		close(drained)
	}()

	var drainErr error
	select {
	case <-drained:
	case <-ctx.Done():
		drainErr = eris.Wrap(ctx.Err(), "stop: waiting for in-flight runs")
		log.Warn("orchestrator stop deadline reached with runs in flight", zap.Strings("in_flight", o.inFlightNames()))
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := o.metrics.Flush(fctx); err != nil {
		log.Error("orchestrator: flush metrics", zap.Error(err))
	}

	o.mu.Lock()
	o.state = StateStopped
	o.cron = nil
	o.entries = nil
	o.healthCancel = nil
	o.healthDone = nil
	o.mu.Unlock()

	log.Info("orchestrator stopped")
	return drainErr
}

// TriggerCollection runs a cadence now and returns the finished run.
func (o *Orchestrator) TriggerCollection(ctx context.Context, name string) (*model.CollectionRun, error) {
	cad, ok := o.cadences[name]
	if !ok {
		return nil, eris.Wrapf(model.ErrUnknownCadence, "trigger %s", name)
	}
	if _, err := o.acquire(cad); err != nil {
		return nil, err
	}
	return o.execute(context.WithoutCancel(ctx), cad), nil
}

// fire is the timer callback. A busy cadence is skipped, never queued.
func (o *Orchestrator) fire(cad model.Cadence) {
	runCtx, err := o.acquire(cad)
	if err != nil {
		o.logger().Info("skipping scheduled run",
			zap.String("cadence", cad.Name), zap.String("reason", err.Error()))
		return
	}
	o.execute(runCtx, cad)
}

// acquire claims the cadence's in-flight flag and registers the run with
// the drain group, returning the orchestrator's base context. All checks
// happen under the lifecycle lock so Stop never races a new run into the group.
func (o *Orchestrator) acquire(cad model.Cadence) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return nil, eris.Wrapf(model.ErrNotRunning, "cadence %s", cad.Name)
	}
	if !o.inFlight[cad.Name].CompareAndSwap(false, true) {
		o.logger().Info("cadence busy, trigger ignored", zap.String("cadence", cad.Name))
		return nil, eris.Wrapf(model.ErrCadenceBusy, "cadence %s", cad.Name)
	}
	o.runs.Add(1)
	return o.baseCtx, nil
}

func (o *Orchestrator) execute(base context.Context, cad model.Cadence) *model.CollectionRun {
	defer o.runs.Done()
	defer o.inFlight[cad.Name].Store(false)

	timeout := cad.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()
	return o.exec.Execute(ctx, cad)
}

// Status returns the current state. Metrics fall back to the last known
// good snapshot when the store cannot be read.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.Lock()
	st := Status{State: o.state, IsRunning: o.state == StateRunning}
	if o.cron != nil {
		st.NextRuns = make(map[string]time.Time, len(o.entries))
		for name, id := range o.entries {
			st.ActiveCadences = append(st.ActiveCadences, name)
			st.NextRuns[name] = o.cron.Entry(id).Next
		}
	}
	o.mu.Unlock()
	slices.Sort(st.ActiveCadences)
	st.InFlight = o.inFlightNames()

	m, err := o.metrics.Snapshot(ctx)
	if err != nil {
		o.logger().Warn("status: metrics unavailable, using last known", zap.Error(err))
	}
	st.Metrics = m
	return st
}

// Cadences returns the configured cadences in configuration order.
func (o *Orchestrator) Cadences() []model.Cadence {
	out := make([]model.Cadence, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.cadences[name])
	}
	return out
}

func (o *Orchestrator) inFlightNames() []string {
	var names []string
	for _, name := range o.order {
		if o.inFlight[name].Load() {
			names = append(names, name)
		}
	}
	return names
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
