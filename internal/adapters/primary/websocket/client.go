package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	sendBufferSize = 64
)

// Control events sent to a single client in reply to its messages.
const (
	EventSubscribed   domain.EventType = "SUBSCRIBED"
	EventUnsubscribed domain.EventType = "UNSUBSCRIBED"
	EventPong         domain.EventType = "PONG"
	EventError        domain.EventType = "ERROR"
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	// ID identifies this connection; a user may hold several.
	ID uuid.UUID

	UserID uuid.UUID

	// SectorID is the sector named in the client's token. Empty means the
	// token is not bound to a sector.
	SectorID string

	hub  *Hub
	conn *websocket.Conn
	send chan domain.Event

	// sendMu guards send against a close racing a reply.
	sendMu sync.RWMutex
	closed bool

	// mu protects subscriptions
	mu            sync.RWMutex
	subscriptions map[string]bool

	logger *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, sectorID string, logger *slog.Logger) *Client {
	id := uuid.New()
	return &Client{
		ID:            id,
		UserID:        userID,
		SectorID:      sectorID,
		hub:           hub,
		conn:          conn,
		send:          make(chan domain.Event, sendBufferSize),
		subscriptions: make(map[string]bool),
		logger:        logger.With("client_id", id.String(), "user_id", userID.String()),
	}
}

// CloseSend safely closes the send channel exactly once
func (c *Client) CloseSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) addSubscription(sectorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[sectorID] = true
}

func (c *Client) removeSubscription(sectorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, sectorID)
}

// Subscriptions returns the sectors the client is subscribed to.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.subscriptions))
	for sectorID := range c.subscriptions {
		subs = append(subs, sectorID)
	}
	return subs
}

// Start registers the client with the hub and starts its I/O pumps. It
// closes the connection when the hub has already stopped.
func (c *Client) Start() {
	if !c.hub.register(c) {
		_ = c.conn.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// --- Incoming Message Handling ---

// ClientMessage is a message sent by the client, for example
// {"action":"subscribe","sectorId":"it"}.
type ClientMessage struct {
	Action   string `json:"action"`
	SectorID string `json:"sectorId"`
}

func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		c.reply(domain.Event{Type: EventError, Payload: "malformed message"})
		return
	}

	switch msg.Action {
	case "subscribe":
		if !c.mayJoin(msg.SectorID) {
			c.logger.Warn("sector subscription refused", "sector_id", msg.SectorID)
			c.reply(domain.Event{Type: EventError, Payload: "sector not allowed", SectorID: msg.SectorID})
			return
		}
		c.hub.subscribe(c, msg.SectorID)
		c.reply(domain.Event{Type: EventSubscribed, SectorID: msg.SectorID})

	case "unsubscribe":
		c.hub.unsubscribe(c, msg.SectorID)
		c.reply(domain.Event{Type: EventUnsubscribed, SectorID: msg.SectorID})

	case "ping":
		c.reply(domain.Event{Type: EventPong})

	default:
		c.logger.Debug("received unknown action", "action", msg.Action)
	}
}

// mayJoin reports whether the client's token allows the sector. Tokens
// without a sector may join any.
func (c *Client) mayJoin(sectorID string) bool {
	if sectorID == "" {
		return false
	}
	return c.SectorID == "" || c.SectorID == sectorID
}

// reply queues a control event for this client only, dropping it when the
// buffer is full.
func (c *Client) reply(event domain.Event) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.closed {
		return
	}
	select {
	case c.send <- event:
	default:
	}
}
