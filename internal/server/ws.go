package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/auth"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
)

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one live connection of a participant.
type Client struct {
	ID        string // participant identity, stable across reconnects
	ConnID    string // unique per connection
	Condition room.ConditionKey
	RoomID    string

	conn   *websocket.Conn
	send   chan WSMessage
	closed bool
}

// MessageHandler reacts to connection lifecycle and inbound messages.
type MessageHandler interface {
	Connected(ctx context.Context, client *Client) error
	HandleMessage(ctx context.Context, client *Client, msg WSMessage)
	Disconnected(ctx context.Context, client *Client)
}

type HubOptions struct {
	TokenSecret  []byte
	DevMode      bool // accept identity and condition from query parameters
	ReadLimit    int64
	PingInterval time.Duration
}

// Hub manages all WebSocket clients and room-level broadcasting. A
// participant has at most one live client; a reconnect replaces it.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	handler MessageHandler
	opts    HubOptions
	metrics *Metrics
	logger  *slog.Logger
}

var errMissingIdentity = errors.New("missing participant identity")

func NewHub(handler MessageHandler, opts HubOptions, metrics *Metrics, logger *slog.Logger) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		handler: handler,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

// SetHandler sets the message handler (used to break circular init).
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, cond, err := h.identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("ws accept", "err", err)
		return
	}
	if h.opts.ReadLimit > 0 {
		conn.SetReadLimit(h.opts.ReadLimit)
	}

	client := &Client{
		ID:        id,
		ConnID:    uuid.NewString(),
		Condition: cond,
		conn:      conn,
		send:      make(chan WSMessage, 64),
	}

	h.register(client)
	h.metrics.IncrWSConn()
	defer h.metrics.DecrWSConn()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, client)

	if h.handler != nil {
		if err := h.handler.Connected(ctx, client); err != nil {
			h.logger.Info("connection refused", "participant", id, "err", err)
			payload, _ := json.Marshal(map[string]string{"message": err.Error()})
			_ = wsjson.Write(ctx, conn, WSMessage{Type: "error", Payload: payload})
			conn.Close(websocket.StatusPolicyViolation, "refused")
			h.unregister(client)
			return
		}
	}

	h.readPump(ctx, client)
	h.unregister(client)

	if h.handler != nil {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		h.handler.Disconnected(dctx, client)
		dcancel()
	}
}

// identify resolves the participant from a signed join token, or from plain
// query parameters in development.
func (h *Hub) identify(r *http.Request) (string, room.ConditionKey, error) {
	q := r.URL.Query()
	if token := q.Get("token"); token != "" {
		claims, err := auth.Verify(token, h.opts.TokenSecret)
		if err != nil {
			return "", room.ConditionKey{}, err
		}
		return claims.Subject, room.ConditionKey{
			Generation: claims.Generation,
			Variation:  claims.Variation,
			KTF:        claims.KTF,
			NearMiss:   claims.NearMiss,
		}, nil
	}
	if !h.opts.DevMode {
		return "", room.ConditionKey{}, errMissingIdentity
	}

	id := q.Get("participantId")
	if id == "" {
		return "", room.ConditionKey{}, errMissingIdentity
	}
	gen, _ := strconv.Atoi(q.Get("generation"))
	variation, _ := strconv.Atoi(q.Get("variation"))
	ktf, _ := strconv.ParseBool(q.Get("ktf"))
	return id, room.ConditionKey{
		Generation: gen,
		Variation:  variation,
		KTF:        ktf,
		NearMiss:   q.Get("nearMiss"),
	}, nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[c.ID]; ok {
		c.RoomID = old.RoomID
		if group, ok := h.rooms[old.RoomID]; ok {
			group[c.ID] = c
		}
		h.closeClient(old)
	}
	h.clients[c.ID] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
		if group, ok := h.rooms[c.RoomID]; ok && group[c.ID] == c {
			delete(group, c.ID)
			if len(group) == 0 {
				delete(h.rooms, c.RoomID)
			}
		}
	}
	h.closeClient(c)
}

// closeClient must be called with h.mu held.
func (h *Hub) closeClient(c *Client) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// JoinRoom adds a client to a room broadcast group.
func (h *Hub) JoinRoom(clientID string, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	if c.RoomID != "" && c.RoomID != roomID {
		if group, ok := h.rooms[c.RoomID]; ok {
			delete(group, c.ID)
		}
	}
	c.RoomID = roomID
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID] = c
}

// LeaveRoom removes a client from a room broadcast group.
func (h *Hub) LeaveRoom(clientID string, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(group, clientID)
	if len(group) == 0 {
		delete(h.rooms, roomID)
	}
	if c, ok := h.clients[clientID]; ok && c.RoomID == roomID {
		c.RoomID = ""
	}
}

// BroadcastRoom sends a message to every client in a room.
func (h *Hub) BroadcastRoom(roomID string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	group, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for _, c := range group {
		h.enqueue(c, msg)
	}
}

// SendTo sends a message to a specific client.
func (h *Hub) SendTo(clientID string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	h.enqueue(c, msg)
}

func (h *Hub) enqueue(c *Client, msg WSMessage) {
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("client send buffer full", "client", c.ID, "type", msg.Type)
	}
}

// GetClient returns a client by participant ID.
func (h *Hub) GetClient(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	return c, ok
}

// RoomSize returns the number of connected clients in a broadcast group.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		if err := c.conn.CloseNow(); err != nil {
			h.logger.Debug("close conn", "err", err)
		}
	}()
	for {
		var msg WSMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
		if h.handler != nil {
			h.handler.HandleMessage(ctx, c, msg)
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
