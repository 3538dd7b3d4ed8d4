package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

// Hub maintains the set of active Clients and broadcasts snapshot events to
// the clients subscribed to the event's sector.
type Hub struct {
	// clients maps connection ids to their clients
	clients map[uuid.UUID]*Client

	// rooms maps sector ids to subscribed clients
	rooms map[string]map[*Client]bool

	// Broadcast channel for events
	broadcast chan domain.Event

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan domain.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues an event for delivery. A full queue drops the event.
func (h *Hub) Broadcast(event domain.Event) error {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"sector_id", event.SectorID,
		)
	}
	return nil
}

// Run starts the hub's event loop and returns when ctx is done, closing
// every remaining client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// register hands a client to Run. It reports false once the hub stopped.
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	h.logger.Info("client registered",
		"client_id", client.ID,
		"user_id", client.UserID,
		"total_connections", len(h.clients),
	)
}

// unregisterClient removes a client from the hub and all rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)

	for _, sectorID := range client.Subscriptions() {
		h.leaveRoom(client, sectorID)
	}

	client.CloseSend()

	h.logger.Info("client unregistered",
		"client_id", client.ID,
		"user_id", client.UserID,
	)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.CloseSend()
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[*Client]bool)
}

// broadcastEvent sends an event to the clients of its sector room. Events
// without a sector go to every client.
func (h *Hub) broadcastEvent(event domain.Event) {
	h.mu.RLock()
	var clients []*Client
	if event.SectorID == "" {
		clients = make([]*Client, 0, len(h.clients))
		for _, client := range h.clients {
			clients = append(clients, client)
		}
	} else {
		room := h.rooms[event.SectorID]
		clients = make([]*Client, 0, len(room))
		for client := range room {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting event",
		"event_type", event.Type,
		"sector_id", event.SectorID,
		"client_count", len(clients),
	)

	for _, client := range clients {
		select {
		case client.send <- event:
		default:
			// Slow client; Run is the only reader of Unregister, so drop it here.
			h.logger.Warn("client send buffer full, unregistering",
				"client_id", client.ID,
				"user_id", client.UserID,
			)
			h.unregisterClient(client)
		}
	}
}

// subscribe adds a client to a sector's room
func (h *Hub) subscribe(client *Client, sectorID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if h.rooms[sectorID] == nil {
		h.rooms[sectorID] = make(map[*Client]bool)
	}
	h.rooms[sectorID][client] = true
	client.addSubscription(sectorID)

	h.logger.Debug("client subscribed to sector",
		"client_id", client.ID,
		"sector_id", sectorID,
	)
}

// unsubscribe removes a client from a sector's room
func (h *Hub) unsubscribe(client *Client, sectorID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveRoom(client, sectorID)
	client.removeSubscription(sectorID)
}

// leaveRoom expects h.mu to be held.
func (h *Hub) leaveRoom(client *Client, sectorID string) {
	if room, ok := h.rooms[sectorID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, sectorID)
		}
	}
}

// ClientCount returns the total number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ClientsInSector returns the number of clients subscribed to a sector
func (h *Hub) ClientsInSector(sectorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sectorID])
}
