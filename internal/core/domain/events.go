package domain

import "time"

// EventType defines the type of real-time event.
type EventType string

const (
	EventSnapshotCreated EventType = "SNAPSHOT_CREATED"
	EventSnapshotDeleted EventType = "SNAPSHOT_DELETED"
)

// Event is the payload sent over WebSocket.
type Event struct {
	Type     EventType   `json:"type"`
	Payload  interface{} `json:"payload"`
	SectorID string      `json:"sectorId"` // Used for routing to sector rooms
}

// SnapshotEventPayload identifies the snapshot an event is about.
type SnapshotEventPayload struct {
	Date      string    `json:"date"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	Tickets   int       `json:"tickets"`
}

// NewSnapshotEventPayload builds the event payload for a stored snapshot.
func NewSnapshotEventPayload(stored *StoredSnapshot) SnapshotEventPayload {
	payload := SnapshotEventPayload{
		Date: stored.Date.Format(DateLayout),
	}
	if s := stored.Snapshot; s != nil {
		payload.Type = s.Metadata.Type
		payload.CreatedAt = s.Metadata.CreatedAt.UTC()
		payload.CreatedBy = s.Metadata.CreatedBy
		payload.Tickets = len(s.TicketIDs)
	}
	return payload
}

// DateLayout is the layout of snapshot dates in URLs and payloads.
const DateLayout = "2006-01-02"
