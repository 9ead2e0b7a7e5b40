package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"citymeet/mobile/internal/config"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const heartbeatInterval = 25 * time.Second

// RealtimeClient multiplexes change-feed subscriptions over a single
// websocket connection. Topics follow the backend's convention:
// realtime:public:<collection>:<filter>.
type RealtimeClient struct {
	endpoint  string
	apiKey    string
	logger    *slog.Logger
	reconnect *rate.Limiter

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string][]*realtimeSub
	nextRef uint64
	closed  bool

	writeMu sync.Mutex
}

type realtimeSub struct {
	client *RealtimeClient
	topic  string
	ch     chan Change

	// once only ever closes ch and must not take client.mu; removed is
	// guarded by client.mu.
	once    sync.Once
	removed bool
}

type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

type changePayload struct {
	Record    Row `json:"record"`
	OldRecord Row `json:"old_record"`
}

func NewRealtimeClient(cfg config.GatewayConfig, logger *slog.Logger) *RealtimeClient {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.RealtimeURL
	if endpoint == "" {
		endpoint = deriveRealtimeURL(cfg.BaseURL)
	}
	return &RealtimeClient{
		endpoint:  endpoint,
		apiKey:    cfg.APIKey,
		logger:    logger,
		reconnect: rate.NewLimiter(rate.Every(2*time.Second), 1),
		subs:      make(map[string][]*realtimeSub),
	}
}

func deriveRealtimeURL(baseURL string) string {
	endpoint := strings.TrimRight(baseURL, "/")
	endpoint = strings.Replace(endpoint, "https://", "wss://", 1)
	endpoint = strings.Replace(endpoint, "http://", "ws://", 1)
	return endpoint + "/realtime/v1/websocket"
}

// Subscribe opens a change feed for rows of collection matching filter.
// The first subscription dials the websocket; later ones share it.
func (c *RealtimeClient) Subscribe(ctx context.Context, collection, filter string, buffer int) (Subscription, error) {
	if buffer <= 0 {
		buffer = 16
	}
	topic := topicFor(collection, filter)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("realtime client is closed")
	}
	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return nil, err
		}
	}

	sub := &realtimeSub{client: c, topic: topic, ch: make(chan Change, buffer)}
	first := len(c.subs[topic]) == 0
	c.subs[topic] = append(c.subs[topic], sub)
	if first {
		if err := c.sendLocked(frame{Topic: topic, Event: "phx_join", Payload: json.RawMessage(`{}`), Ref: c.refLocked()}); err != nil {
			c.dropSubLocked(sub)
			return nil, err
		}
	}
	return sub, nil
}

// Close tears down the connection and closes every subscription channel.
func (c *RealtimeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	for _, subs := range c.subs {
		for _, sub := range subs {
			// Consume the sub's once so a later sub.Close() is a no-op
			// instead of a double close.
			sub.removed = true
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	c.subs = make(map[string][]*realtimeSub)
}

func (s *realtimeSub) Changes() <-chan Change { return s.ch }

func (s *realtimeSub) Close() {
	c := s.client
	c.mu.Lock()
	if !s.removed {
		s.removed = true
		if !c.closed {
			c.dropSubLocked(s)
		}
	}
	c.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

func (c *RealtimeClient) dropSubLocked(sub *realtimeSub) {
	subs := c.subs[sub.topic]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(c.subs, sub.topic)
		if c.conn != nil {
			_ = c.sendLocked(frame{Topic: sub.topic, Event: "phx_leave", Payload: json.RawMessage(`{}`), Ref: c.refLocked()})
		}
	} else {
		c.subs[sub.topic] = subs
	}
}

func (c *RealtimeClient) dialLocked(ctx context.Context) error {
	endpoint := c.endpoint
	if c.apiKey != "" {
		endpoint += "?apikey=" + url.QueryEscape(c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	c.conn = conn
	go c.readLoop(conn)
	go c.heartbeatLoop(conn)
	return nil
}

func (c *RealtimeClient) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.dispatch(f)
	}
}

func (c *RealtimeClient) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		stale := c.conn != conn || c.closed
		var err error
		if !stale {
			err = c.sendLocked(frame{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: c.refLocked()})
		}
		c.mu.Unlock()
		if stale || err != nil {
			return
		}
	}
}

func (c *RealtimeClient) dispatch(f frame) {
	kind := ChangeKind(f.Event)
	if kind != ChangeInsert && kind != ChangeUpdate && kind != ChangeDelete {
		return
	}
	var payload changePayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		c.logger.Warn("action", "action", "realtime_dispatch", "status", "bad_payload", "error", err)
		return
	}
	change := Change{Kind: kind, Row: payload.Record, Old: payload.OldRecord}

	c.mu.Lock()
	subs := append([]*realtimeSub(nil), c.subs[f.Topic]...)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(change)
	}
}

// deliver never blocks the read loop: when a consumer's buffer is full the
// oldest pending change is dropped to make room.
func (s *realtimeSub) deliver(change Change) {
	select {
	case s.ch <- change:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- change:
	default:
	}
}

func (c *RealtimeClient) handleDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	c.logger.Warn("action", "action", "realtime_read", "status", "disconnected", "error", cause)

	for {
		if err := c.reconnect.Wait(context.Background()); err != nil {
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if len(c.subs) == 0 {
			c.mu.Unlock()
			return
		}
		err := c.dialLocked(context.Background())
		if err == nil {
			for topic := range c.subs {
				if sendErr := c.sendLocked(frame{Topic: topic, Event: "phx_join", Payload: json.RawMessage(`{}`), Ref: c.refLocked()}); sendErr != nil {
					err = sendErr
					break
				}
			}
		}
		c.mu.Unlock()
		if err == nil {
			return
		}
		c.logger.Warn("action", "action", "realtime_reconnect", "status", "failed", "error", err)
	}
}

func (c *RealtimeClient) sendLocked(f frame) error {
	if c.conn == nil {
		return fmt.Errorf("realtime connection is down")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(f)
}

func (c *RealtimeClient) refLocked() string {
	c.nextRef++
	return strconv.FormatUint(c.nextRef, 10)
}

func topicFor(collection, filter string) string {
	topic := "realtime:public:" + collection
	if filter != "" {
		topic += ":" + filter
	}
	return topic
}
