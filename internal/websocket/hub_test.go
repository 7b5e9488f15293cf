package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/stockbook/internal/auth"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "alice")
	c2 := mockClient(hub, "alice")
	c3 := mockClient(hub, "bob")

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if got := hub.ClientCount(); got != 3 {
		t.Fatalf("expected 3 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients after unregister, got %d", got)
	}

	hub.Unregister(c2)
	hub.Unregister(c3)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "alice")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestNotifyTargetsOneUser(t *testing.T) {
	hub := NewHub(slog.Default())

	tab1 := mockClient(hub, "alice")
	tab2 := mockClient(hub, "alice")
	other := mockClient(hub, "bob")
	hub.Register(tab1)
	hub.Register(tab2)
	hub.Register(other)

	hub.Notify("alice", TransactionSettled(42, true))

	for _, c := range []*Client{tab1, tab2} {
		got := receive(t, c)
		if got.Type != TypeTransactionSettled {
			t.Errorf("expected type %s, got %s", TypeTransactionSettled, got.Type)
		}
		if got.ID != 42 {
			t.Errorf("expected id 42, got %d", got.ID)
		}
		if got.Extra["is_paid"] != true {
			t.Errorf("expected is_paid true, got %v", got.Extra["is_paid"])
		}
	}

	select {
	case <-other.send:
		t.Error("other user should not receive the message")
	default:
	}
}

func TestNudgeAll(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "alice")
	c2 := mockClient(hub, "bob")
	hub.Register(c1)
	hub.Register(c2)

	hub.NudgeAll("day_rollover")

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != TypeNotificationsCheck {
			t.Errorf("expected type %s, got %s", TypeNotificationsCheck, got.Type)
		}
		if got.Extra["reason"] != "day_rollover" {
			t.Errorf("expected reason day_rollover, got %v", got.Extra["reason"])
		}
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(NotificationsCheck("test"))
	hub.Notify("nobody", NotificationsCheck("test"))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "alice")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Notify("alice", NewMessage("test", "fill", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Notify("alice", NewMessage("test", "dropped", 999, nil))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("transaction", "settled", 5, nil)
	if msg.Type != "transaction_settled" {
		t.Errorf("expected type transaction_settled, got %s", msg.Type)
	}
	if msg.Entity != "transaction" {
		t.Errorf("expected entity transaction, got %s", msg.Entity)
	}
	if msg.Action != "settled" {
		t.Errorf("expected action settled, got %s", msg.Action)
	}
	if msg.ID != 5 {
		t.Errorf("expected id 5, got %d", msg.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "alice")
			hub.Register(c)
			hub.NudgeAll("concurrent")
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocket(t *testing.T) {
	hub := NewHub(slog.Default())
	h := HandleWebSocket(hub, nil, slog.Default())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.URL.Query().Get("user"); user != "" {
			r = r.WithContext(auth.WithUser(r.Context(), user))
		}
		h(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := ws.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatal("expected anonymous dial to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	conn, _, err := ws.Dial(ctx, wsURL+"?user=alice", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for hub.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.Notify("alice", NotificationsCheck("settled"))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeNotificationsCheck {
		t.Errorf("type = %s, want %s", got.Type, TypeNotificationsCheck)
	}
}
