package websocket

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startHub serves upgrades for a client bound to sectorID and returns a
// connected peer.
func startHub(t *testing.T, sectorID string) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, uuid.New(), sectorID, discardLogger()).Start()
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	return hub, peer
}

func readEvent(t *testing.T, peer *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event domain.Event
	require.NoError(t, peer.ReadJSON(&event))
	return event
}

func TestHub_SectorRooms(t *testing.T) {
	hub, peer := startHub(t, "it")

	// 1. Subscribe
	require.NoError(t, peer.WriteJSON(ClientMessage{Action: "subscribe", SectorID: "it"}))
	ack := readEvent(t, peer)
	assert.Equal(t, EventSubscribed, ack.Type)
	assert.Equal(t, 1, hub.ClientsInSector("it"))

	// 2. Events of other sectors are not delivered
	require.NoError(t, hub.Broadcast(domain.Event{Type: domain.EventSnapshotCreated, SectorID: "hr"}))
	require.NoError(t, hub.Broadcast(domain.Event{
		Type:     domain.EventSnapshotCreated,
		SectorID: "it",
		Payload:  domain.SnapshotEventPayload{Date: "2024-03-12", Type: "daily"},
	}))

	event := readEvent(t, peer)
	assert.Equal(t, domain.EventSnapshotCreated, event.Type)
	assert.Equal(t, "it", event.SectorID)

	// 3. Unsubscribe
	require.NoError(t, peer.WriteJSON(ClientMessage{Action: "unsubscribe", SectorID: "it"}))
	assert.Equal(t, EventUnsubscribed, readEvent(t, peer).Type)
	assert.Equal(t, 0, hub.ClientsInSector("it"))
}

func TestHub_RefusesForeignSector(t *testing.T) {
	hub, peer := startHub(t, "it")

	require.NoError(t, peer.WriteJSON(ClientMessage{Action: "subscribe", SectorID: "finance"}))
	assert.Equal(t, EventError, readEvent(t, peer).Type)
	assert.Equal(t, 0, hub.ClientsInSector("finance"))

	require.NoError(t, peer.WriteJSON(ClientMessage{Action: "ping"}))
	assert.Equal(t, EventPong, readEvent(t, peer).Type)
}

func TestHub_UnscopedTokenJoinsAnySector(t *testing.T) {
	hub, peer := startHub(t, "")

	require.NoError(t, peer.WriteJSON(ClientMessage{Action: "subscribe", SectorID: "finance"}))
	assert.Equal(t, EventSubscribed, readEvent(t, peer).Type)
	assert.Equal(t, 1, hub.ClientsInSector("finance"))
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, peer := startHub(t, "it")

	require.NoError(t, peer.WriteJSON(ClientMessage{Action: "subscribe", SectorID: "it"}))
	readEvent(t, peer)

	require.NoError(t, peer.Close())
	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0 && hub.ClientsInSector("it") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
