package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/agentwatch/internal/notify"
	wsHub "github.com/obsidianstack/agentwatch/internal/ws"
	"github.com/obsidianstack/agentwatch/pkg/monitor"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

type nopChannel types.Channel

func (c nopChannel) Kind() types.Channel                       { return types.Channel(c) }
func (nopChannel) Send(context.Context, notify.Message) error { return nil }

func newMonitor(t *testing.T) *monitor.Monitor {
	t.Helper()
	var opts []notify.DispatcherOption
	for _, kind := range types.Channels {
		opts = append(opts, notify.WithChannel(nopChannel(kind)))
	}
	return monitor.New(monitor.WithDispatcher(notify.NewDispatcher(opts...)))
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cancel function.
func startHub(t *testing.T, m *monitor.Monitor, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(m, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads and decodes one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg wsHub.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, raw)
	}
	return msg
}

// waitCount polls hub.Count until it equals want.
func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count: got %d, want %d", hub.Count(), want)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateState(t *testing.T) {
	m := newMonitor(t)
	if err := m.RecordHealthMetric("a-1", types.MetricCPUUsage, 97, "%", nil); err != nil {
		t.Fatal(err)
	}
	wsURL, _, _ := startHub(t, m, time.Hour)

	msg := readMessage(t, dial(t, wsURL))
	if msg.Event != wsHub.EventState {
		t.Errorf("event: got %q, want %q", msg.Event, wsHub.EventState)
	}
	if msg.Data.Summary.TotalAgents != 1 {
		t.Errorf("total_agents: got %d, want 1", msg.Data.Summary.TotalAgents)
	}
	if len(msg.Data.Agents) != 1 || msg.Data.Agents[0].AgentID != "a-1" {
		t.Errorf("agents: got %+v", msg.Data.Agents)
	}
	if len(msg.Data.Alerts) != 1 {
		t.Errorf("alerts: got %d, want 1", len(msg.Data.Alerts))
	}
}

func TestHub_EmptyMonitor_EmptyLists(t *testing.T) {
	wsURL, _, _ := startHub(t, newMonitor(t), time.Hour)
	msg := readMessage(t, dial(t, wsURL))

	if len(msg.Data.Agents) != 0 || len(msg.Data.Alerts) != 0 {
		t.Errorf("expected empty lists, got %d agents, %d alerts", len(msg.Data.Agents), len(msg.Data.Alerts))
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	m := newMonitor(t)
	wsURL, _, _ := startHub(t, m, testInterval)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate state (empty monitor)

	if err := m.RecordHealthMetric("new-agent", types.MetricMemoryUsage, 40, "%", nil); err != nil {
		t.Fatal(err)
	}

	// A later tick carries the new agent.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readMessage(t, conn)
		if len(msg.Data.Agents) == 1 {
			if msg.Data.Agents[0].AgentID != "new-agent" {
				t.Errorf("agent_id: got %q, want new-agent", msg.Data.Agents[0].AgentID)
			}
			return
		}
	}
	t.Fatal("no tick broadcast carried the new agent")
}

func TestHub_PushFromSubscription(t *testing.T) {
	m := newMonitor(t)
	wsURL, hub, _ := startHub(t, m, time.Hour)
	m.Subscribe(hub.Push)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	if err := m.RecordHealthMetric("a-1", types.MetricErrorRate, 20, "%", nil); err != nil {
		t.Fatal(err)
	}
	m.PerformHealthChecks()

	msg := readMessage(t, conn)
	if msg.Event != wsHub.EventUpdate {
		t.Fatalf("event: got %q, want %q", msg.Event, wsHub.EventUpdate)
	}
	if len(msg.Data.Alerts) != 1 || msg.Data.Alerts[0].Severity != types.SeverityCritical {
		t.Errorf("alerts: got %+v", msg.Data.Alerts)
	}
}

func TestHub_PushWithoutClients_NoOp(t *testing.T) {
	hub := wsHub.New(newMonitor(t), time.Hour)
	// Must not block or panic.
	hub.Push(map[string]*types.HealthSnapshot{}, nil)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count: got %d, want 0", n)
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newMonitor(t), time.Hour)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i]) // consume initial message
	}
	waitCount(t, hub, 3)

	conns[0].Close()
	waitCount(t, hub, 2)
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newMonitor(t), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	cancel() // signal shutdown
	waitCount(t, hub, 0)
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(newMonitor(t), testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers → 400
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
