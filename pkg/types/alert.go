package types

import (
	"fmt"
	"strings"
	"time"
)

// EscalationLevel is an ordered tier. Level4 is terminal.
type EscalationLevel int

const (
	Level1 EscalationLevel = iota + 1
	Level2
	Level3
	Level4
)

// MaxEscalationLevel is the highest level an alert can reach.
const MaxEscalationLevel = Level4

func (l EscalationLevel) String() string {
	return fmt.Sprintf("LEVEL_%d", int(l))
}

// HealthAlert is one threshold breach event for an agent metric.
type HealthAlert struct {
	ID              string
	AgentID         string
	Severity        Severity
	Message         string
	MetricType      MetricType
	CurrentValue    float64
	Threshold       float64
	Timestamp       time.Time
	Acknowledged    bool
	Resolved        bool
	EscalationLevel EscalationLevel
	EscalatedAt     *time.Time
	AcknowledgedAt  *time.Time
	ResolvedAt      *time.Time
}

// Clone returns a copy of a that shares no pointers with it.
func (a *HealthAlert) Clone() *HealthAlert {
	cp := *a
	cp.EscalatedAt = cloneTime(a.EscalatedAt)
	cp.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	cp.ResolvedAt = cloneTime(a.ResolvedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelConsole Channel = "CONSOLE"
	ChannelLog     Channel = "LOG"
	ChannelEmail   Channel = "EMAIL"
	ChannelSlack   Channel = "SLACK"
)

// Channels lists every recognised channel.
var Channels = []Channel{ChannelConsole, ChannelLog, ChannelEmail, ChannelSlack}

// ParseChannel accepts a channel identifier in any case and rejects unknown ones.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Channels {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown notification channel %q", s)
}

// EscalationPolicy controls who hears about an alert once it reaches Level.
type EscalationPolicy struct {
	Level                EscalationLevel
	DelayMinutes         int
	Contacts             []string
	NotificationChannels []Channel
	AutoEscalate         bool
}

// Delay returns DelayMinutes as a duration.
func (p EscalationPolicy) Delay() time.Duration {
	return time.Duration(p.DelayMinutes) * time.Minute
}

// NotificationConfig is the per-channel delivery setting.
type NotificationConfig struct {
	Channel    Channel
	Template   string
	Recipients []string
	Enabled    bool
}
