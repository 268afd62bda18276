// Package eventstream pushes facade events and phase changes to websocket
// subscribers, for dashboards that watch a migration live.
package eventstream

import (
	"context"
	"net/http"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/juju/clock"

	"github.com/surrealdb/migrator/pkg/decision"
	"github.com/surrealdb/migrator/pkg/events"
	"github.com/surrealdb/migrator/pkg/logger"
)

const (
	// CloseMessageCode is sent to subscribers when the hub shuts down.
	CloseMessageCode = gorilla.CloseNormalClosure

	DefaultBuffer = 64
	writeTimeout  = 5 * time.Second
	pingInterval  = 30 * time.Second
)

// Message types.
const (
	TypeInconsistency = "inconsistency"
	TypeSlowCall      = "slow_call"
	TypeTimeout       = "timeout"
	TypeSwallowed     = "swallowed"
	TypePhase         = "phase"
)

// Message is what subscribers receive, one JSON text frame each.
type Message struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	ElapsedMs int64     `json:"elapsed_ms,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
}

// Hub is an events.Sink that fans events out to every connected subscriber.
// A subscriber whose buffer is full misses messages rather than slowing the
// facade down.
type Hub struct {
	upgrader gorilla.Upgrader
	buffer   int
	clock    clock.Clock
	logger   logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

var _ events.Sink = (*Hub)(nil)

type client struct {
	conn *gorilla.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

type Option func(*Hub)

func WithBuffer(n int) Option {
	return func(h *Hub) {
		h.buffer = n
	}
}

func WithClock(clk clock.Clock) Option {
	return func(h *Hub) {
		h.clock = clk
	}
}

func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		buffer:  DefaultBuffer,
		clock:   clock.WallClock,
		logger:  logger.Nop(),
		clients: make(map[*client]struct{}),
	}
	h.upgrader.EnableCompression = true
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams messages until the subscriber
// goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.readLoop(c)
	h.writeLoop(c)
}

// readLoop discards what the subscriber sends and notices when it leaves.
func (h *Hub) readLoop(c *client) {
	defer c.stop()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ping := h.clock.NewTimer(pingInterval)
	defer func() {
		ping.Stop()
		h.remove(c)
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(h.clock.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(gorilla.TextMessage, data); err != nil {
				h.logger.Debug("dropping subscriber", "error", err)
				return
			}
		case <-ping.Chan():
			_ = c.conn.SetWriteDeadline(h.clock.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(gorilla.PingMessage, nil); err != nil {
				return
			}
			ping.Reset(pingInterval)
		case <-c.done:
			_ = c.conn.SetWriteDeadline(h.clock.Now().Add(writeTimeout))
			_ = c.conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(CloseMessageCode, ""))
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Publish stamps m and queues it for every subscriber.
func (h *Hub) Publish(m Message) {
	if m.Time.IsZero() {
		m.Time = h.clock.Now().UTC()
	}
	data, err := gojson.Marshal(m)
	if err != nil {
		h.logger.Error("failed to encode event", "type", m.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("subscriber buffer full, message dropped", "type", m.Type)
		}
	}
}

// Close disconnects every subscriber and rejects new ones. It waits for the
// close frames to be written until ctx ends.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	for h.Clients() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

func callMessage(typ string, c events.Call) Message {
	return Message{
		Type:      typ,
		Component: c.Component,
		Operation: c.Operation,
		Kind:      string(c.Kind),
	}
}

func (h *Hub) Inconsistent(_ context.Context, e events.InconsistencyEvent) {
	m := callMessage(TypeInconsistency, e.Call)
	m.Detail = e.Result.Report().Summary
	h.Publish(m)
}

func (h *Hub) SlowCall(_ context.Context, e events.SlowCallEvent) {
	m := callMessage(TypeSlowCall, e.Call)
	m.ElapsedMs = e.Elapsed.Milliseconds()
	h.Publish(m)
}

func (h *Hub) Timeout(_ context.Context, e events.TimeoutEvent) {
	m := callMessage(TypeTimeout, e.Call)
	m.ElapsedMs = e.Wait.Milliseconds()
	if e.Interrupted {
		m.Detail = "interrupted"
	}
	h.Publish(m)
}

func (h *Hub) Swallowed(_ context.Context, e events.SwallowedEvent) {
	m := callMessage(TypeSwallowed, e.Call)
	m.Detail = e.Err.Error()
	h.Publish(m)
}

// PhaseObserver returns a decision.Observer publishing every transition.
func (h *Hub) PhaseObserver() decision.Observer {
	return func(from, to decision.Phase) {
		h.Publish(Message{Type: TypePhase, From: string(from), To: string(to)})
	}
}
