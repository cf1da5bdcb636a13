package notify

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Log emits a structured warning record per alert.
type Log struct {
	logger *slog.Logger
}

// NewLog logs through l, or slog.Default when l is nil.
func NewLog(l *slog.Logger) *Log {
	return &Log{logger: l}
}

func (l *Log) Kind() types.Channel { return types.ChannelLog }

func (l *Log) Send(ctx context.Context, msg Message) error {
	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}
	a := msg.Alert
	logger.WarnContext(ctx, "notify: health alert",
		"alert", a.ID,
		"agent", a.AgentID,
		"severity", a.Severity,
		"metric", a.MetricType,
		"value", a.CurrentValue,
		"threshold", a.Threshold,
		"level", a.EscalationLevel.String(),
		"text", msg.Text,
	)
	return nil
}
