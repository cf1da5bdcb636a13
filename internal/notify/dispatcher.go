package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/obsidianstack/agentwatch/internal/telemetry"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Dispatcher routes alerts to channels according to their configs.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	metrics *telemetry.Metrics

	mu       sync.RWMutex
	channels map[types.Channel]Channel
	configs  map[types.Channel]types.NotificationConfig
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithChannel installs ch, replacing the built-in implementation of its kind.
func WithChannel(ch Channel) DispatcherOption {
	return func(d *Dispatcher) { d.channels[ch.Kind()] = ch }
}

// WithMetrics counts every delivery attempt in m.
func WithMetrics(m *telemetry.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher returns a Dispatcher with every channel enabled and the
// default template. EMAIL logs instead of sending and SLACK has no webhook
// until replaced with WithChannel or Register.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channels: map[types.Channel]Channel{
			types.ChannelConsole: NewConsole(nil),
			types.ChannelLog:     NewLog(nil),
			types.ChannelEmail:   NewEmail(LogMailer{}),
			types.ChannelSlack:   NewSlack("", 0),
		},
		configs: make(map[types.Channel]types.NotificationConfig, len(types.Channels)),
	}
	for _, kind := range types.Channels {
		d.configs[kind] = types.NotificationConfig{Channel: kind, Enabled: true}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Register installs ch at runtime.
func (d *Dispatcher) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.Kind()] = ch
}

// Configure replaces the config of every channel in cfgs. Channels not in
// cfgs keep their current config. An unknown channel rejects the whole set.
func (d *Dispatcher) Configure(cfgs map[types.Channel]types.NotificationConfig) error {
	parsed := make(map[types.Channel]types.NotificationConfig, len(cfgs))
	for kind, cfg := range cfgs {
		k, err := types.ParseChannel(string(kind))
		if err != nil {
			return fmt.Errorf("notify: configure: %w", err)
		}
		cfg.Channel = k
		parsed[k] = cfg
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for kind, cfg := range parsed {
		d.configs[kind] = cfg
	}
	return nil
}

// Config returns the current config of kind.
func (d *Dispatcher) Config(kind types.Channel) (types.NotificationConfig, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.configs[kind]
	return cfg, ok
}

// Dispatch renders a for each enabled channel in channels and sends it.
// Non-empty recipients override the channel's configured recipients. It
// returns the number of channels that accepted the message.
func (d *Dispatcher) Dispatch(ctx context.Context, a *types.HealthAlert, channels []types.Channel, recipients []string) int {
	sent := 0
	for _, kind := range channels {
		d.mu.RLock()
		cfg, hasCfg := d.configs[kind]
		ch, hasCh := d.channels[kind]
		d.mu.RUnlock()

		if !hasCfg || !cfg.Enabled {
			continue
		}
		if !hasCh {
			slog.Warn("notify: no implementation for channel", "channel", kind)
			continue
		}

		to := cfg.Recipients
		if len(recipients) > 0 {
			to = recipients
		}
		msg := Message{
			Alert:      a,
			Subject:    subject(a),
			Text:       Render(cfg.Template, a),
			Recipients: to,
		}

		err := safeSend(ctx, ch, msg)
		d.metrics.Notification(string(kind), err)
		if err != nil {
			slog.Error("notify: delivery failed",
				"channel", kind,
				"alert", a.ID,
				"err", err,
			)
			continue
		}
		sent++
	}
	return sent
}

// safeSend converts a panic in ch into an error.
func safeSend(ctx context.Context, ch Channel, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: %s panicked: %v", ch.Kind(), r)
		}
	}()
	return ch.Send(ctx, msg)
}
