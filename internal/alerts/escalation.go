package alerts

import (
	"log/slog"
	"sort"
	"time"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// DefaultPolicies returns the built-in four-tier escalation ladder.
func DefaultPolicies() map[types.EscalationLevel]types.EscalationPolicy {
	return map[types.EscalationLevel]types.EscalationPolicy{
		types.Level1: {
			Level:                types.Level1,
			NotificationChannels: []types.Channel{types.ChannelConsole, types.ChannelLog},
			AutoEscalate:         true,
		},
		types.Level2: {
			Level:                types.Level2,
			DelayMinutes:         15,
			NotificationChannels: []types.Channel{types.ChannelLog, types.ChannelEmail},
			AutoEscalate:         true,
		},
		types.Level3: {
			Level:                types.Level3,
			DelayMinutes:         30,
			NotificationChannels: []types.Channel{types.ChannelEmail, types.ChannelSlack},
			AutoEscalate:         true,
		},
		types.Level4: {
			Level:                types.Level4,
			DelayMinutes:         60,
			NotificationChannels: append([]types.Channel(nil), types.Channels...),
			AutoEscalate:         true,
		},
	}
}

// Escalation pairs an alert with the policy of the level it moves to.
type Escalation struct {
	Alert  *types.HealthAlert
	Policy types.EscalationPolicy
}

// Due reports whether a may move to the level governed by p at now. The
// delay runs from the last escalation, or from the alert's timestamp when it
// has never escalated.
func Due(a *types.HealthAlert, p types.EscalationPolicy, now time.Time) bool {
	if !p.AutoEscalate || p.Level != a.EscalationLevel+1 {
		return false
	}
	since := a.Timestamp
	if a.EscalatedAt != nil {
		since = *a.EscalatedAt
	}
	return now.Sub(since) >= p.Delay()
}

// Escalations returns the open, unacknowledged alerts whose next level is
// defined and due at now, oldest first.
func (s *Store) Escalations(now time.Time) []Escalation {
	var out []Escalation
	for _, a := range s.alerts {
		if a.Resolved || a.Acknowledged || a.EscalationLevel >= types.MaxEscalationLevel {
			continue
		}
		p, ok := s.policies[a.EscalationLevel+1]
		if !ok || !Due(a, p, now) {
			continue
		}
		out = append(out, Escalation{Alert: a, Policy: p})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Alert, out[j].Alert
		if !ai.Timestamp.Equal(aj.Timestamp) {
			return ai.Timestamp.Before(aj.Timestamp)
		}
		return ai.ID < aj.ID
	})
	return out
}

// Escalate moves a to p.Level and stamps EscalatedAt. Levels only move
// forward and never past MaxEscalationLevel; it reports whether a changed.
func Escalate(a *types.HealthAlert, p types.EscalationPolicy, now time.Time) bool {
	if p.Level <= a.EscalationLevel || p.Level > types.MaxEscalationLevel {
		return false
	}
	a.EscalationLevel = p.Level
	a.EscalatedAt = &now
	slog.Warn("alerts: escalated",
		"alert", a.ID,
		"agent", a.AgentID,
		"level", p.Level.String(),
	)
	return true
}
