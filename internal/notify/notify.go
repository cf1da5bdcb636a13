package notify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// DefaultTemplate is used when a channel config has no template.
const DefaultTemplate = "[{severity}] {agentId}: {message} at {timestamp}"

// Message is a rendered alert ready for delivery.
type Message struct {
	Alert      *types.HealthAlert
	Subject    string
	Text       string
	Recipients []string
}

// Channel is one delivery mechanism.
type Channel interface {
	Kind() types.Channel
	Send(ctx context.Context, msg Message) error
}

// Render substitutes alert fields into tmpl.
func Render(tmpl string, a *types.HealthAlert) string {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	r := strings.NewReplacer(
		"{severity}", string(a.Severity),
		"{message}", a.Message,
		"{agentId}", a.AgentID,
		"{timestamp}", a.Timestamp.UTC().Format(time.RFC3339),
		"{metricType}", string(a.MetricType),
		"{value}", strconv.FormatFloat(a.CurrentValue, 'f', -1, 64),
		"{threshold}", strconv.FormatFloat(a.Threshold, 'f', -1, 64),
		"{level}", a.EscalationLevel.String(),
	)
	return r.Replace(tmpl)
}

// subject is the one-line title used by channels that have one.
func subject(a *types.HealthAlert) string {
	return "[" + string(a.Severity) + "] " + a.AgentID + " " + string(a.MetricType)
}
