package clients

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_clients_connected",
		Help: "Number of open pages connected to the agent",
	})

	windowsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_windows_opened_total",
		Help: "Total number of windows opened by the agent",
	})
)

const writeWait = 10 * time.Second

type registration struct {
	client     Client
	seq        int64
	controller string
}

// Hub is the in-process Registry. Pages join over WebSocket via ServeHTTP
// or directly via Register.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*registration
	generation string

	seq       atomic.Int64
	opener    Opener
	onMessage MessageHandler
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// NewHub creates a hub. A nil opener makes OpenWindow fail with ErrNoOpener.
func NewHub(opener Opener, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*registration),
		opener:  opener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// OnMessage sets the handler for page messages. Call before serving.
func (h *Hub) OnMessage(fn MessageHandler) {
	h.onMessage = fn
}

// Register adds an open page. Pages joining after a claim are controlled
// by the claiming generation.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[c.ID()]; !exists {
		connectedClients.Inc()
	}
	h.clients[c.ID()] = &registration{
		client:     c,
		seq:        h.seq.Add(1),
		controller: h.generation,
	}
}

// Unregister removes a page.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[id]; exists {
		delete(h.clients, id)
		connectedClients.Dec()
	}
}

// Controller returns the generation controlling page id, or "" if none.
func (h *Hub) Controller(id string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if reg, ok := h.clients[id]; ok {
		return reg.controller
	}
	return ""
}

// MatchAll returns open pages in registration order.
func (h *Hub) MatchAll(_ context.Context, opts MatchOptions) ([]Client, error) {
	h.mu.RLock()
	regs := make([]*registration, 0, len(h.clients))
	for _, reg := range h.clients {
		if reg.controller == "" && !opts.IncludeUncontrolled {
			continue
		}
		regs = append(regs, reg)
	}
	h.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].seq < regs[j].seq })

	out := make([]Client, len(regs))
	for i, reg := range regs {
		out[i] = reg.client
	}
	return out, nil
}

// Claim makes generation the controller of every open page.
func (h *Hub) Claim(_ context.Context, generation string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.generation = generation
	for _, reg := range h.clients {
		reg.controller = generation
	}

	h.logger.Info().
		Str("generation", generation).
		Int("clients", len(h.clients)).
		Msg("Claimed open clients")
	return nil
}

// OpenWindow opens a new page through the configured opener.
func (h *Hub) OpenWindow(ctx context.Context, url string) (Client, error) {
	if h.opener == nil {
		return nil, ErrNoOpener
	}

	c, err := h.opener(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open window %s: %w", url, err)
	}
	windowsOpened.Inc()

	if c != nil {
		h.Register(c)
	}
	return c, nil
}

// ServeHTTP upgrades a page connection to WebSocket. The page passes its
// location in the "url" query parameter. Text frames from controlled pages
// are handed to the message handler until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("url")
	if location == "" {
		location = r.Referer()
	}
	if location == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &socketClient{
		id:   "ws-" + strconv.FormatInt(h.seq.Add(1), 10),
		url:  location,
		conn: conn,
	}
	h.Register(c)
	defer h.Unregister(c.id)

	h.logger.Debug().Str("client_id", c.id).Str("url", location).Msg("Client connected")

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", c.id).Msg("Client connection closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage || h.onMessage == nil {
			continue
		}
		if h.Controller(c.id) == "" {
			h.logger.Debug().Str("client_id", c.id).Msg("Dropping message from uncontrolled client")
			continue
		}
		h.onMessage(ctx, c.id, string(data))
	}
}

// socketClient is a page connected over WebSocket.
type socketClient struct {
	id  string
	url string

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (c *socketClient) ID() string  { return c.id }
func (c *socketClient) URL() string { return c.url }

// Focus asks the page to bring itself to the foreground.
func (c *socketClient) Focus(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(map[string]string{"type": "focus"}); err != nil {
		return fmt.Errorf("send focus to %s: %w", c.id, err)
	}
	return nil
}
