package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Console prints one line per alert.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole writes to w, or stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Kind() types.Channel { return types.ChannelConsole }

func (c *Console) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s %s\n", msg.Alert.EscalationLevel, msg.Text)
	return err
}
