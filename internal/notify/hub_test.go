package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, hub *Hub, agentID string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, agentID)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, agentID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Clients(agentID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("clients for %s = %d, want %d", agentID, hub.Clients(agentID), want)
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()
	url := newTestServer(t, hub, "agent-1")

	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, hub, "agent-1", 2)

	hub.Publish("agent-1", "portfolio", map[string]string{"total_value": "100000"})
	hub.Publish("agent-2", "portfolio", map[string]string{"total_value": "1"})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg struct {
			Type    string            `json:"type"`
			AgentID string            `json:"agent_id"`
			Data    map[string]string `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "portfolio" || msg.AgentID != "agent-1" || msg.Data["total_value"] != "100000" {
			t.Errorf("unexpected message %s", raw)
		}
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()
	url := newTestServer(t, hub, "agent-1")

	conn := dial(t, url)
	waitClients(t, hub, "agent-1", 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitClients(t, hub, "agent-1", 0)

	// Publishing with no subscribers is a no-op.
	hub.Publish("agent-1", "portfolio", nil)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil, nil)
	url := newTestServer(t, hub, "agent-1")

	conn := dial(t, url)
	waitClients(t, hub, "agent-1", 1)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close")
	}
	waitClients(t, hub, "agent-1", 0)

	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("expected closed hub to refuse new subscribers")
	}
}

func TestHub_PingKeepsConnectionAlive(t *testing.T) {
	hub := NewHub(&HubConfig{
		PingInterval: 20 * time.Millisecond,
		ReadTimeout:  60 * time.Millisecond,
		WriteTimeout: time.Second,
		SendBuffer:   4,
	}, nil)
	defer hub.Close()
	url := newTestServer(t, hub, "agent-1")

	conn := dial(t, url)
	// The default ping handler answers with a pong while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	waitClients(t, hub, "agent-1", 1)

	time.Sleep(200 * time.Millisecond)
	if got := hub.Clients("agent-1"); got != 1 {
		t.Fatalf("clients = %d after several read timeouts, want 1", got)
	}
}
