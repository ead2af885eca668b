// Package audit fans out one Event per pipeline request to every
// websocket subscriber currently attached, the same broadcast-to-all
// shape the teacher's live-query protocol registry uses, carrying audit
// records instead of row-level change notifications.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event is one audited pipeline run, successful or not.
type Event struct {
	RequestID        string    `json:"requestId"`
	TenantID         string    `json:"tenantId"`
	ReferencedTables []string  `json:"referencedTables,omitempty"`
	DisplayLimit     int       `json:"displayLimit,omitempty"`
	FetchLimit       int       `json:"fetchLimit,omitempty"`
	DurationMs       int64     `json:"durationMs"`
	ErrorCode        string    `json:"errorCode,omitempty"`
	At               time.Time `json:"at"`
}

type subscriber struct {
	id   string
	conn *websocket.Conn
}

// Hub tracks every connected audit-stream subscriber and broadcasts
// events to all of them.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber)}
}

// Subscribe registers conn as an audit-stream recipient and returns an
// unsubscribe function the caller must invoke when the connection
// closes.
func (h *Hub) Subscribe(conn *websocket.Conn) (id string, unsubscribe func()) {
	id = uuid.NewString()
	h.mu.Lock()
	h.subs[id] = &subscriber{id: id, conn: conn}
	h.mu.Unlock()
	return id, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish broadcasts event to every current subscriber. Write failures
// are tolerated here; a dead connection is cleaned up once its own read
// loop notices the error and calls the unsubscribe function.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		_ = sub.conn.WriteJSON(event)
	}
}

// Count reports the number of active subscribers, mainly for health
// reporting.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
