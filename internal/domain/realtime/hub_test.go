package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/liwaywai/lending-api/internal/middleware"
	"github.com/liwaywai/lending-api/internal/pkg/jwt"
)

func waitEvent(t *testing.T, ch <-chan []byte) Event {
	t.Helper()
	select {
	case msg := <-ch:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("unmarshal ws event: %v", err)
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting websocket event")
	}
	return Event{}
}

func attach(h *Hub, userID uuid.UUID) *Connection {
	c := &Connection{UserID: userID, Send: make(chan []byte, 4)}
	h.mu.Lock()
	if h.connections[userID] == nil {
		h.connections[userID] = map[*Connection]bool{}
	}
	h.connections[userID][c] = true
	h.mu.Unlock()
	return c
}

func TestNotifyReachesOnlyOwner(t *testing.T) {
	h := NewHub(nil)
	owner, other := uuid.New(), uuid.New()
	a1, a2 := attach(h, owner), attach(h, owner)
	b := attach(h, other)

	h.Notify(context.Background(), owner, "level.changed", map[string]int{"new_level": 1})

	for _, c := range []*Connection{a1, a2} {
		ev := waitEvent(t, c.Send)
		if ev.Type != "level.changed" {
			t.Fatalf("unexpected event type %q", ev.Type)
		}
	}
	select {
	case msg := <-b.Send:
		t.Fatalf("other borrower received %s", msg)
	default:
	}
}

func TestRelayedEventsAreDeliveredOnce(t *testing.T) {
	var (
		mu        sync.Mutex
		published []string
	)
	a := NewHubWithInstanceID(nil, "a")
	b := NewHubWithInstanceID(nil, "b")
	relay := func(ctx context.Context, channel string, payload []byte) error {
		mu.Lock()
		published = append(published, string(payload))
		mu.Unlock()
		a.handleUserEventPayload(string(payload))
		b.handleUserEventPayload(string(payload))
		return nil
	}
	a.publishFn = relay
	b.publishFn = relay

	userID := uuid.New()
	onA, onB := attach(a, userID), attach(b, userID)

	a.Notify(context.Background(), userID, "share.accessed", nil)

	waitEvent(t, onA.Send)
	waitEvent(t, onB.Send)
	select {
	case msg := <-onA.Send:
		t.Fatalf("sender instance delivered twice: %s", msg)
	default:
	}
	if len(published) != 1 {
		t.Fatalf("expected one publish, got %d", len(published))
	}
}

func TestFullBufferDropsEvent(t *testing.T) {
	h := NewHub(nil)
	userID := uuid.New()
	c := &Connection{UserID: userID, Send: make(chan []byte)}
	h.connections[userID] = map[*Connection]bool{c: true}

	done := make(chan struct{})
	go func() {
		h.Notify(context.Background(), userID, "loan.decided", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked on a full buffer")
	}
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWebSocketFeed(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	jwtService := jwt.NewService("secret", time.Hour)
	r := chi.NewRouter()
	r.Mount("/api/v1/ws", NewHandler(hub, nil).Routes(middleware.AuthWebSocket(jwtService)))
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	userID := uuid.New()
	token, _ := jwtService.GenerateAccessToken(userID, middleware.RoleBorrower)
	conn, wsResp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s/api/v1/ws?token=%s", wsURL(ts.URL), token), nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	defer conn.Close()
	if wsResp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", wsResp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Notify(context.Background(), userID, "loan.decided", map[string]string{"status": "approved"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "loan.decided" || ev.Data["status"] != "approved" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
