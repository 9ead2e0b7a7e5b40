package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"citymeet/mobile/internal/config"

	"github.com/gorilla/websocket"
)

// realtimeServer is a minimal phoenix-style endpoint: it records joins and
// lets tests push change frames back.
type realtimeServer struct {
	*httptest.Server
	joins chan frame
	conns chan *websocket.Conn
}

func newRealtimeServer(t *testing.T) *realtimeServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	s := &realtimeServer{
		joins: make(chan frame, 8),
		conns: make(chan *websocket.Conn, 2),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == "phx_join" {
				s.joins <- f
			}
		}
	}))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *realtimeServer) url() string {
	return strings.Replace(s.Server.URL, "http://", "ws://", 1)
}

func (s *realtimeServer) pushChange(t *testing.T, topic string, kind ChangeKind, record Row) {
	t.Helper()
	payload, err := json.Marshal(changePayload{Record: record})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	select {
	case conn := <-s.conns:
		s.conns <- conn
		if err := conn.WriteJSON(frame{Topic: topic, Event: string(kind), Payload: payload}); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection established")
	}
}

// TestSubscribeJoinsTopicAndDelivers verifies the join frame, topic naming
// and change delivery end to end over a real websocket.
func TestSubscribeJoinsTopicAndDelivers(t *testing.T) {
	server := newRealtimeServer(t)

	client := NewRealtimeClient(config.GatewayConfig{RealtimeURL: server.url(), APIKey: "anon-key"}, nil)
	defer client.Close()

	sub, err := client.Subscribe(context.Background(), "comments", "event_id=eq.ev1", 8)
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	defer sub.Close()

	select {
	case join := <-server.joins:
		if join.Topic != "realtime:public:comments:event_id=eq.ev1" {
			t.Fatalf("unexpected join topic %q", join.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no join frame received")
	}

	server.pushChange(t, "realtime:public:comments:event_id=eq.ev1", ChangeInsert, Row{"id": "c1"})
	select {
	case change := <-sub.Changes():
		if change.Kind != ChangeInsert || change.Row.ID() != "c1" {
			t.Fatalf("unexpected change %+v", change)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("change never delivered")
	}
}

// TestSubscriptionsShareOneConnection verifies a second subscription does
// not dial again and only new topics are joined.
func TestSubscriptionsShareOneConnection(t *testing.T) {
	server := newRealtimeServer(t)

	client := NewRealtimeClient(config.GatewayConfig{RealtimeURL: server.url()}, nil)
	defer client.Close()

	first, err := client.Subscribe(context.Background(), "comments", "event_id=eq.ev1", 8)
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	defer first.Close()
	<-server.joins

	second, err := client.Subscribe(context.Background(), "comment_likes", "user_id=eq.u1", 8)
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	defer second.Close()

	select {
	case join := <-server.joins:
		if join.Topic != "realtime:public:comment_likes:user_id=eq.u1" {
			t.Fatalf("unexpected join topic %q", join.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second topic never joined")
	}
	if got := len(server.conns); got != 1 {
		t.Fatalf("expected one shared connection, got %d", got)
	}
}

// TestCloseClosesSubscriptionChannels verifies teardown closes every
// consumer channel.
func TestCloseClosesSubscriptionChannels(t *testing.T) {
	server := newRealtimeServer(t)

	client := NewRealtimeClient(config.GatewayConfig{RealtimeURL: server.url()}, nil)
	sub, err := client.Subscribe(context.Background(), "comments", "", 8)
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	client.Close()
	select {
	case _, open := <-sub.Changes():
		if open {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel never closed")
	}

	if _, err := client.Subscribe(context.Background(), "comments", "", 8); err == nil {
		t.Fatalf("subscribe after close should fail")
	}

	// Consumers tear down after the client does; closing again must be a
	// no-op, not a double close.
	sub.Close()
}

// TestSubCloseAfterClientCloseIsNoop verifies the reverse teardown order
// on its own: release the feed first, then the client.
func TestSubCloseAfterClientCloseIsNoop(t *testing.T) {
	server := newRealtimeServer(t)

	client := NewRealtimeClient(config.GatewayConfig{RealtimeURL: server.url()}, nil)
	sub, err := client.Subscribe(context.Background(), "comments", "event_id=eq.ev1", 8)
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	sub.Close()
	sub.Close()
	client.Close()

	if _, open := <-sub.Changes(); open {
		t.Fatalf("expected closed channel")
	}
}

// TestDeriveRealtimeURL verifies the websocket endpoint derivation.
func TestDeriveRealtimeURL(t *testing.T) {
	cases := map[string]string{
		"https://backend.example.com":  "wss://backend.example.com/realtime/v1/websocket",
		"http://localhost:8000/":       "ws://localhost:8000/realtime/v1/websocket",
		"https://backend.example.com/": "wss://backend.example.com/realtime/v1/websocket",
	}
	for in, want := range cases {
		if got := deriveRealtimeURL(in); got != want {
			t.Fatalf("deriveRealtimeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestTopicFor verifies topic naming with and without a filter.
func TestTopicFor(t *testing.T) {
	if got := topicFor("comments", "event_id=eq.1"); got != "realtime:public:comments:event_id=eq.1" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := topicFor("events", ""); got != "realtime:public:events" {
		t.Fatalf("unexpected topic %q", got)
	}
}
