package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/agentwatch/internal/alerts"
	"github.com/obsidianstack/agentwatch/internal/analyzer"
	"github.com/obsidianstack/agentwatch/internal/notify"
	"github.com/obsidianstack/agentwatch/internal/telemetry"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// ErrInvalidMetric is returned by RecordHealthMetric for unusable input.
var ErrInvalidMetric = errors.New("invalid metric")

// ErrNotFound is returned for unknown alert IDs.
var ErrNotFound = alerts.ErrNotFound

// dispatchTimeout bounds the delivery of one notification.
const dispatchTimeout = 30 * time.Second

// Monitor is the health orchestrator. It is safe for concurrent use.
type Monitor struct {
	cfg        Config
	now        func() time.Time
	log        *slog.Logger
	metrics    *telemetry.Metrics
	dispatcher *notify.Dispatcher
	delivery   *deliverer

	// mu guards snapshots, thresholds and store.
	mu         sync.Mutex
	snapshots  map[string]*types.HealthSnapshot
	thresholds analyzer.Thresholds
	store      *alerts.Store

	subMu   sync.Mutex
	subs    map[uint64]*subscriber
	nextSub uint64

	// runMu guards the loop lifecycle.
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped Monitor seeded with the default thresholds.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		cfg:        DefaultConfig(),
		now:        time.Now,
		snapshots:  make(map[string]*types.HealthSnapshot),
		thresholds: analyzer.Thresholds(types.DefaultThresholds()),
		subs:       make(map[uint64]*subscriber),
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.dispatcher == nil {
		m.dispatcher = notify.NewDispatcher(notify.WithMetrics(m.metrics))
	}
	m.delivery = newDeliverer(m.dispatcher, m.log, dispatchTimeout)
	m.cfg = m.cfg.withDefaults()
	m.store = alerts.NewStore()
	if err := m.apply(m.cfg); err != nil {
		m.log.Error("monitor: initial config rejected, using defaults", "err", err)
	}
	return m
}

// ApplyConfig swaps in new settings. Thresholds are laid over the current
// registry, escalation policies and channel configs are replaced. Loop
// intervals take effect on the next Start. On error nothing changes.
func (m *Monitor) ApplyConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if err := m.apply(cfg); err != nil {
		return err
	}
	m.log.Info("monitor: configuration applied",
		"thresholds", len(cfg.Thresholds),
		"policies", len(cfg.Policies),
		"dedup", cfg.Dedup,
	)
	return nil
}

func (m *Monitor) apply(cfg Config) error {
	for _, th := range cfg.Thresholds {
		if err := th.Validate(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	}
	if len(cfg.Channels) > 0 {
		if err := m.dispatcher.Configure(cfg.Channels); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	}

	policies := cfg.Policies
	if len(policies) == 0 {
		policies = alerts.DefaultPolicies()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, th := range cfg.Thresholds {
		m.thresholds[th.MetricType] = th
	}
	m.recomputeFor(cfg.Thresholds...)
	m.store.Configure(
		alerts.WithRetention(cfg.AlertRetention),
		alerts.WithDedup(cfg.Dedup),
		alerts.WithPolicies(policies),
	)
	m.cfg = cfg
	return nil
}

// Start launches the background loop. Calling Start on a running Monitor
// logs and returns.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		m.log.Info("monitor: already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.cfg.HealthCheckInterval, m.cfg.AlertCheckInterval, m.done)

	m.log.Info("monitor: started",
		"health_check_interval", m.cfg.HealthCheckInterval,
		"alert_check_interval", m.cfg.AlertCheckInterval,
	)
}

// Stop cancels the background loop and waits for it to exit, then cancels
// notification sends still in flight and waits up to StopTimeout for the
// delivery worker. Notifications not yet sent are dropped. Calling Stop on a
// stopped Monitor only stops the delivery worker.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel == nil {
		m.log.Info("monitor: not running")
	} else {
		m.cancel()
		select {
		case <-m.done:
		case <-time.After(m.cfg.StopTimeout):
			m.log.Warn("monitor: loop slow to exit, still waiting", "timeout", m.cfg.StopTimeout)
			<-m.done
		}
		m.cancel = nil
		m.done = nil
		m.log.Info("monitor: stopped")
	}

	m.delivery.stop(m.cfg.StopTimeout)
}

// Running reports whether the background loop is active.
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) loop(ctx context.Context, healthEvery, alertEvery time.Duration, done chan struct{}) {
	defer close(done)

	health := time.NewTicker(healthEvery)
	defer health.Stop()
	alertTick := time.NewTicker(alertEvery)
	defer alertTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-health.C:
			m.guard("health check", m.PerformHealthChecks)
		case <-alertTick.C:
			m.guard("alert check", m.CheckAlerts)
		}
	}
}

// guard keeps the loop alive if a pass panics.
func (m *Monitor) guard(pass string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("monitor: pass panicked", "pass", pass, "panic", r)
		}
	}()
	fn()
}

// dispatch queues notifications for the delivery worker. It never blocks on
// a channel.
func (m *Monitor) dispatch(pending []notification) {
	m.delivery.enqueue(pending)
}

// notification is an alert copy and the policy whose channels receive it.
type notification struct {
	alert  *types.HealthAlert
	policy types.EscalationPolicy
}
