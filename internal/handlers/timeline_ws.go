package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TimelineEvent is one message pushed to stream subscribers.
type TimelineEvent struct {
	Kind       string    `json:"kind"` // incident_created, case_updated, ...
	IncidentID *uint     `json:"incident_id,omitempty"`
	CaseID     *uint     `json:"case_id,omitempty"`
	At         time.Time `json:"at"`
}

// TimelineHub fans lifecycle events out to connected WebSocket clients.
// Slow clients are dropped rather than allowed to block the hub.
type TimelineHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan TimelineEvent
}

// NewTimelineHub creates a hub.
func NewTimelineHub() *TimelineHub {
	return &TimelineHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan TimelineEvent),
	}
}

// HandleWS upgrades the connection and streams events until the client
// goes away.
func (h *TimelineHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("TimelineHub: upgrade failed: %v", err)
		return
	}
	ch := make(chan TimelineEvent, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	go h.writeLoop(conn, ch)
	h.readLoop(conn)
}

func (h *TimelineHub) writeLoop(conn *websocket.Conn, ch chan TimelineEvent) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.drop(conn)
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(conn)
				return
			}
		}
	}
}

// readLoop discards client messages; its job is noticing disconnects.
func (h *TimelineHub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *TimelineHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}

// BroadcastIncident announces an incident event to all subscribers.
func (h *TimelineHub) BroadcastIncident(incidentID uint, kind string) {
	h.broadcast(TimelineEvent{Kind: kind, IncidentID: &incidentID, At: time.Now()})
}

// BroadcastCase announces a case event to all subscribers.
func (h *TimelineHub) BroadcastCase(caseID uint, kind string) {
	h.broadcast(TimelineEvent{Kind: kind, CaseID: &caseID, At: time.Now()})
}

func (h *TimelineHub) broadcast(event TimelineEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- event:
		default:
			// Buffer full: the client is not keeping up.
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}
