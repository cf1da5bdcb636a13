package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/obsidianstack/agentwatch/internal/alerts"
	"github.com/obsidianstack/agentwatch/internal/config"
	"github.com/obsidianstack/agentwatch/internal/notify"
	"github.com/obsidianstack/agentwatch/internal/telemetry"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// DefaultStopTimeout bounds how long Stop waits for the loop to exit.
const DefaultStopTimeout = 10 * time.Second

// Config holds the orchestrator settings.
type Config struct {
	HealthCheckInterval time.Duration
	AlertCheckInterval  time.Duration
	MetricsInterval     time.Duration
	AlertRetention      time.Duration
	Dedup               alerts.DedupPolicy
	SubscriberTimeout   time.Duration
	StopTimeout         time.Duration

	// Thresholds are laid over the built-in defaults.
	Thresholds []types.HealthThreshold
	// Policies replaces the default escalation ladder when non-empty.
	Policies map[types.EscalationLevel]types.EscalationPolicy
	// Channels updates the dispatcher's per-channel configs.
	Channels map[types.Channel]types.NotificationConfig
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval: config.DefaultHealthCheckInterval,
		AlertCheckInterval:  config.DefaultAlertCheckInterval,
		MetricsInterval:     config.DefaultMetricsInterval,
		AlertRetention:      config.DefaultAlertRetention,
		Dedup:               alerts.DedupReuse,
		SubscriberTimeout:   config.DefaultSubscriberTimeout,
		StopTimeout:         DefaultStopTimeout,
	}
}

// ConfigFrom converts a loaded config file into monitor settings.
func ConfigFrom(c *config.Config) (Config, error) {
	dedup, err := alerts.ParseDedupPolicy(c.Monitor.Dedup)
	if err != nil {
		return Config{}, fmt.Errorf("monitor: %w", err)
	}
	cfg := DefaultConfig()
	cfg.HealthCheckInterval = c.Monitor.HealthCheckInterval
	cfg.AlertCheckInterval = c.Monitor.AlertCheckInterval
	cfg.MetricsInterval = c.Monitor.MetricsInterval
	cfg.AlertRetention = c.Monitor.AlertRetention
	cfg.SubscriberTimeout = c.Monitor.SubscriberTimeout
	cfg.Dedup = dedup
	cfg.Thresholds = c.Thresholds
	cfg.Policies = c.EscalationPolicies()
	cfg.Channels = c.NotificationConfigs()
	return cfg, nil
}

// withDefaults fills zero durations.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.AlertCheckInterval <= 0 {
		c.AlertCheckInterval = d.AlertCheckInterval
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = d.MetricsInterval
	}
	if c.AlertRetention <= 0 {
		c.AlertRetention = d.AlertRetention
	}
	if c.Dedup == "" {
		c.Dedup = d.Dedup
	}
	if c.SubscriberTimeout <= 0 {
		c.SubscriberTimeout = d.SubscriberTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	return c
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithConfig replaces DefaultConfig.
func WithConfig(c Config) Option {
	return func(m *Monitor) { m.cfg = c }
}

// WithDispatcher sets the notification dispatcher.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(m *Monitor) { m.dispatcher = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithMetrics records engine activity in t.
func WithMetrics(t *telemetry.Metrics) Option {
	return func(m *Monitor) { m.metrics = t }
}
