package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Slack posts alerts to an incoming webhook. With no URL it only logs.
type Slack struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewSlack returns a SLACK channel posting to url. perMinute > 0 caps the
// send rate; a send that would exceed it fails instead of queueing.
func NewSlack(url string, perMinute int) *Slack {
	s := &Slack{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if perMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return s
}

func (s *Slack) Kind() types.Channel { return types.ChannelSlack }

func (s *Slack) Send(ctx context.Context, msg Message) error {
	if s.url == "" {
		slog.Info("notify: slack webhook not configured", "alert", msg.Alert.ID, "text", msg.Text)
		return nil
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return fmt.Errorf("notify: slack: rate limit exceeded")
	}

	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", severityLabel(msg.Alert.Severity), msg.Text),
	})
	return s.post(ctx, body)
}

func (s *Slack) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: slack: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack: http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: slack: webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "[CRITICAL]"
	case types.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}
