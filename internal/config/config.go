package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultMetricsInterval     = 30 * time.Second
	DefaultHealthCheckInterval = 60 * time.Second
	DefaultAlertCheckInterval  = 15 * time.Second
	DefaultAlertRetention      = 7 * 24 * time.Hour
	DefaultSubscriberTimeout   = 5 * time.Second
	DefaultHTTPPort            = 8080
	DefaultExportBufferSize    = 16
	DefaultExportKey           = "agentwatch:export"
)

// Dedup modes for repeated threshold breaches.
const (
	DedupReuse  = "reuse"
	DedupAppend = "append"
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Monitor    MonitorConfig            `yaml:"monitor"`
	Thresholds []types.HealthThreshold  `yaml:"thresholds"`
	Escalation []EscalationConfig       `yaml:"escalation"`
	Channels   map[string]ChannelConfig `yaml:"channels"`
	Sources    []Source                 `yaml:"sources"`
	Export     ExportConfig             `yaml:"export"`
	HTTP       HTTPConfig               `yaml:"http"`
}

// MonitorConfig holds orchestrator loop settings.
type MonitorConfig struct {
	// MetricsInterval is the default poll interval for sources that set none.
	MetricsInterval time.Duration `yaml:"metrics_interval"`

	// HealthCheckInterval controls how often every snapshot is re-evaluated.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// AlertCheckInterval controls auto-resolution, pruning and escalation passes.
	AlertCheckInterval time.Duration `yaml:"alert_check_interval"`

	// AlertRetention is the age after which alerts are pruned regardless of state.
	AlertRetention time.Duration `yaml:"alert_retention"`

	// Dedup is one of: reuse | append.
	Dedup string `yaml:"dedup"`

	// SubscriberTimeout bounds how long one subscriber callback may run before
	// it is reported as slow.
	SubscriberTimeout time.Duration `yaml:"subscriber_timeout"`
}

// EscalationConfig is one escalation tier.
type EscalationConfig struct {
	Level        int      `yaml:"level"`
	DelayMinutes int      `yaml:"delay_minutes"`
	Contacts     []string `yaml:"contacts"`
	Channels     []string `yaml:"notification_channels"`
	AutoEscalate *bool    `yaml:"auto_escalate"`
}

// ChannelConfig configures one notification channel. The map key in Config
// is the channel identifier (console | log | email | slack).
type ChannelConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Template   string   `yaml:"template"`
	Recipients []string `yaml:"recipients"`

	// Slack: WebhookURLEnv names the env var holding the incoming webhook URL.
	WebhookURLEnv string `yaml:"webhook_url_env"`
	// Slack: RatePerMinute caps outgoing messages. 0 means no limit.
	RatePerMinute int `yaml:"rate_per_minute"`

	// Email: Mailgun settings. The API key is read from APIKeyEnv.
	Domain    string `yaml:"domain"`
	From      string `yaml:"from"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// WebhookURL returns the Slack webhook URL resolved from the environment.
func (c ChannelConfig) WebhookURL() string {
	if c.WebhookURLEnv == "" {
		return ""
	}
	return os.Getenv(c.WebhookURLEnv)
}

// APIKey returns the Mailgun API key resolved from the environment.
func (c ChannelConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// Source describes one polled metric producer.
type Source struct {
	// ID is a unique identifier; it becomes the agent ID of recorded metrics.
	ID string `yaml:"id"`

	// Type is one of: system | exposition | promql | tls.
	Type string `yaml:"type"`

	// Endpoint is the scrape URL (exposition) or Prometheus base URL (promql).
	Endpoint string `yaml:"endpoint"`

	// Interval overrides monitor.metrics_interval for this source.
	Interval time.Duration `yaml:"interval"`

	// Timeout caps one Collect call.
	Timeout time.Duration `yaml:"timeout"`

	// Metrics maps an output metric name to a family name (exposition) or a
	// PromQL expression (promql).
	Metrics map[string]string `yaml:"metrics"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies how a source authenticates to its endpoint.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name for apikey mode.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token env var name.
	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ExportConfig configures the optional Redis export publisher.
type ExportConfig struct {
	// RedisAddr enables publishing when non-empty (host:port).
	RedisAddr   string        `yaml:"redis_addr"`
	PasswordEnv string        `yaml:"password_env"`
	Key         string        `yaml:"key"`
	Channel     string        `yaml:"channel"`
	TTL         time.Duration `yaml:"ttl"`
	BufferSize  int           `yaml:"buffer_size"`
}

// Password returns the Redis password resolved from the environment.
func (e ExportConfig) Password() string {
	if e.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(e.PasswordEnv)
}

// HTTPConfig configures the dashboard REST/WebSocket listener.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// Auth mode is one of: apikey | none.
	AuthMode string `yaml:"auth_mode"`
	// Header is the request header carrying the API key. Defaults to X-API-Key.
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`
	// BroadcastInterval controls how often WebSocket clients receive the summary.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// Key returns the expected API key resolved from the environment.
func (h HTTPConfig) Key() string {
	if h.KeyEnv == "" {
		return ""
	}
	return os.Getenv(h.KeyEnv)
}

// EffectiveHeader returns Header or the default.
func (h HTTPConfig) EffectiveHeader() string {
	if h.Header == "" {
		return "X-API-Key"
	}
	return h.Header
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config holding only default values.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			MetricsInterval:     DefaultMetricsInterval,
			HealthCheckInterval: DefaultHealthCheckInterval,
			AlertCheckInterval:  DefaultAlertCheckInterval,
			AlertRetention:      DefaultAlertRetention,
			Dedup:               DedupReuse,
			SubscriberTimeout:   DefaultSubscriberTimeout,
		},
		Export: ExportConfig{
			Key:        DefaultExportKey,
			BufferSize: DefaultExportBufferSize,
		},
		HTTP: HTTPConfig{
			Port:              DefaultHTTPPort,
			BroadcastInterval: 5 * time.Second,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	m := cfg.Monitor
	if m.MetricsInterval <= 0 {
		return fmt.Errorf("monitor.metrics_interval must be positive")
	}
	if m.HealthCheckInterval <= 0 {
		return fmt.Errorf("monitor.health_check_interval must be positive")
	}
	if m.AlertCheckInterval <= 0 {
		return fmt.Errorf("monitor.alert_check_interval must be positive")
	}
	if m.AlertRetention <= 0 {
		return fmt.Errorf("monitor.alert_retention must be positive")
	}
	switch m.Dedup {
	case DedupReuse, DedupAppend:
	default:
		return fmt.Errorf("monitor.dedup: unknown mode %q", m.Dedup)
	}

	for i, th := range cfg.Thresholds {
		if err := th.Validate(); err != nil {
			return fmt.Errorf("thresholds[%d]: %w", i, err)
		}
	}

	seen := make(map[int]bool)
	for i, e := range cfg.Escalation {
		if e.Level < int(types.Level1) || e.Level > int(types.MaxEscalationLevel) {
			return fmt.Errorf("escalation[%d]: level %d out of range 1-%d", i, e.Level, types.MaxEscalationLevel)
		}
		if seen[e.Level] {
			return fmt.Errorf("escalation[%d]: duplicate level %d", i, e.Level)
		}
		seen[e.Level] = true
		if e.DelayMinutes < 0 {
			return fmt.Errorf("escalation[%d]: delay_minutes must not be negative", i)
		}
		for _, ch := range e.Channels {
			if _, err := types.ParseChannel(ch); err != nil {
				return fmt.Errorf("escalation[%d]: %w", i, err)
			}
		}
	}

	for name := range cfg.Channels {
		if _, err := types.ParseChannel(name); err != nil {
			return fmt.Errorf("channels: %w", err)
		}
	}

	ids := make(map[string]bool)
	for i, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if ids[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		ids[src.ID] = true
		switch src.Type {
		case "system":
		case "exposition", "promql":
			if src.Endpoint == "" {
				return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
			}
			if len(src.Metrics) == 0 {
				return fmt.Errorf("sources[%d] %q: metrics mapping is required", i, src.ID)
			}
		case "tls":
			if !strings.HasPrefix(src.Endpoint, "https://") {
				return fmt.Errorf("sources[%d] %q: tls source needs an https endpoint", i, src.ID)
			}
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
		switch src.Auth.Mode {
		case "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}

	switch cfg.HTTP.AuthMode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("http.auth_mode: unknown mode %q", cfg.HTTP.AuthMode)
	}
	return nil
}

// EscalationPolicies converts the escalation section to typed policies.
// Returns nil when the section is empty so callers can fall back to defaults.
func (c *Config) EscalationPolicies() map[types.EscalationLevel]types.EscalationPolicy {
	if len(c.Escalation) == 0 {
		return nil
	}
	out := make(map[types.EscalationLevel]types.EscalationPolicy, len(c.Escalation))
	for _, e := range c.Escalation {
		p := types.EscalationPolicy{
			Level:        types.EscalationLevel(e.Level),
			DelayMinutes: e.DelayMinutes,
			Contacts:     e.Contacts,
			AutoEscalate: e.AutoEscalate == nil || *e.AutoEscalate,
		}
		for _, ch := range e.Channels {
			// Already validated.
			kind, _ := types.ParseChannel(ch)
			p.NotificationChannels = append(p.NotificationChannels, kind)
		}
		out[p.Level] = p
	}
	return out
}

// NotificationConfigs converts the channels section to typed configs.
func (c *Config) NotificationConfigs() map[types.Channel]types.NotificationConfig {
	out := make(map[types.Channel]types.NotificationConfig, len(c.Channels))
	for name, ch := range c.Channels {
		kind, _ := types.ParseChannel(name)
		out[kind] = types.NotificationConfig{
			Channel:    kind,
			Template:   ch.Template,
			Recipients: ch.Recipients,
			Enabled:    ch.Enabled,
		}
	}
	return out
}

// Channel returns the raw settings for kind, if configured.
func (c *Config) Channel(kind types.Channel) (ChannelConfig, bool) {
	for name, ch := range c.Channels {
		if k, err := types.ParseChannel(name); err == nil && k == kind {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}
