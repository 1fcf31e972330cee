package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ma99us/MikeDB/lib/access"
	"github.com/ma99us/MikeDB/lib/db"
	"github.com/ma99us/MikeDB/lib/hub"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

type fixture struct {
	registry *db.Registry
	hub      *hub.Hub
	url      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := db.New(db.Options{})
	checker := access.NewChecker(registry.Config(), map[string][]access.Grant{
		"reader": {{DBName: "app*", Access: access.READ}},
	})
	h := hub.New(checker)
	registry.SetNotifier(h)

	ctx, cancel := context.WithCancel(context.Background())
	mux := http.NewServeMux()
	mux.Handle("GET /api/subscribe/{db}", NewHandler(ctx, h))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		h.Shutdown()
		srv.Close()
	})
	return &fixture{registry: registry, hub: h, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *fixture) dial(t *testing.T, dbName string) *websocket.Conn {
	t.Helper()
	c, resp, err := websocket.DefaultDialer.Dial(f.url+"/api/subscribe/"+dbName, nil)
	if err != nil {
		t.Fatalf("dial: %v (response %v)", err, resp)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, msg string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func readEvent(t *testing.T, c *websocket.Conn) map[string]interface{} {
	t.Helper()
	raw := read(t, c)
	var event map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("not an event: %q", raw)
	}
	return event
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "app")

	send(t, c, "PING")
	if got := read(t, c); got != "PONG" {
		t.Fatalf("got %q, want PONG", got)
	}

	send(t, c, `{"API_KEY":"reader"}`)
	newEvent := readEvent(t, c)
	if newEvent["event"] != string(store.EventNew) {
		t.Fatalf("first event %v", newEvent)
	}
	opened := readEvent(t, c)
	if opened["event"] != string(store.EventOpened) || opened["sessionId"] != newEvent["sessionId"] {
		t.Fatalf("second event %v", opened)
	}

	if _, err := f.registry.Put("app", "k", value.MustParse(`{"id":1}`), "other"); err != nil {
		t.Fatal(err)
	}
	change := readEvent(t, c)
	if change["event"] != string(store.EventUpdated) || change["key"] != "k" || change["sessionId"] != "other" {
		t.Errorf("change event %v", change)
	}

	send(t, c, "hello")
	if got := read(t, c); got != newEvent["sessionId"].(string)+" says: hello" {
		t.Errorf("relay %q", got)
	}
}

func TestSubscribersSeeEachOther(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t, "app")
	send(t, a, `{"API_KEY":"reader"}`)
	readEvent(t, a) // NEW
	readEvent(t, a) // own OPENED

	b := f.dial(t, "app")
	send(t, b, `{"API_KEY":"reader"}`)
	bNew := readEvent(t, b)

	opened := readEvent(t, a)
	if opened["event"] != string(store.EventOpened) || opened["sessionId"] != bNew["sessionId"] {
		t.Fatalf("a saw %v", opened)
	}

	_ = b.Close()
	closed := readEvent(t, a)
	if closed["event"] != string(store.EventClosed) || closed["sessionId"] != bNew["sessionId"] {
		t.Fatalf("a saw %v", closed)
	}
}

func TestRejectedHandshake(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "other")
	send(t, c, `{"API_KEY":"reader"}`)
	event := readEvent(t, c)
	if event["event"] != string(store.EventError) || event["exception"] != store.RetCAuthorization.String() {
		t.Fatalf("event %v", event)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Error("connection should be closed")
	}
	if f.hub.HasActiveSubscribers("other") {
		t.Error("rejected connection must not be attached")
	}
}

func TestBadDatabaseName(t *testing.T) {
	f := newFixture(t)
	_, resp, err := websocket.DefaultDialer.Dial(f.url+"/api/subscribe/.config", nil)
	if err == nil {
		t.Fatal("dial should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response %v", resp)
	}
}

func TestConnectionIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newConnID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
