package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Session event types pushed to room members.
const (
	EventConnected         = "connected"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventSessionNavigated  = "session_navigated"
	EventSessionEnded      = "session_ended"
	EventSessionExpired    = "session_expired"
)

type Client struct {
	Conn          *websocket.Conn
	Send          chan []byte
	ParticipantID string
}

// Hub keeps one room per group session.
type Hub struct {
	Rooms map[string]map[*Client]bool
	Mutex sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{Rooms: make(map[string]map[*Client]bool)}
}

// H is the process-wide hub.
var H = NewHub()

type SessionEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
	SentAt    time.Time   `json:"sent_at"`
}

// Register adds a connection to the session room and starts its pumps.
func (h *Hub) Register(sessionID, participantID string, conn *websocket.Conn) *Client {
	client := &Client{
		Conn:          conn,
		Send:          make(chan []byte, sendBuffer),
		ParticipantID: participantID,
	}

	h.Mutex.Lock()
	if _, ok := h.Rooms[sessionID]; !ok {
		h.Rooms[sessionID] = make(map[*Client]bool)
	}
	h.Rooms[sessionID][client] = true
	h.Mutex.Unlock()

	go h.writePump(client)
	go h.readPump(sessionID, client)
	return client
}

func (h *Hub) Unregister(sessionID string, client *Client) {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	if clients, ok := h.Rooms[sessionID]; ok {
		if _, ok := clients[client]; ok {
			close(client.Send)
			delete(clients, client)
		}
		if len(clients) == 0 {
			delete(h.Rooms, sessionID)
		}
	}
}

// Broadcast sends data to every member of the room. A member whose buffer
// is full misses the message.
func (h *Hub) Broadcast(sessionID string, data []byte) {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()

	for client := range h.Rooms[sessionID] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// SendTo delivers data to one member if it is still in the room.
func (h *Hub) SendTo(sessionID string, client *Client, data []byte) {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()

	if !h.Rooms[sessionID][client] {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// CloseRoom disconnects every member of the room.
func (h *Hub) CloseRoom(sessionID string) {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	for client := range h.Rooms[sessionID] {
		close(client.Send)
	}
	delete(h.Rooms, sessionID)
}

type Stats struct {
	Rooms   int `json:"rooms"`
	Clients int `json:"clients"`
}

func (h *Hub) GetStats() Stats {
	h.Mutex.RLock()
	defer h.Mutex.RUnlock()

	s := Stats{Rooms: len(h.Rooms)}
	for _, clients := range h.Rooms {
		s.Clients += len(clients)
	}
	return s
}

func jsonEvent(eventType, sessionID string, data interface{}) ([]byte, error) {
	return json.Marshal(SessionEvent{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		SentAt:    time.Now().UTC(),
	})
}

// BroadcastSessionEvent pushes a typed event to a session room.
func BroadcastSessionEvent(sessionID, eventType string, data interface{}) {
	msg, err := jsonEvent(eventType, sessionID, data)
	if err != nil {
		zap.L().Error("Failed to marshal session event", zap.String("type", eventType), zap.Error(err))
		return
	}
	H.Broadcast(sessionID, msg)

	if eventType == EventSessionEnded || eventType == EventSessionExpired {
		// let the final event drain before the room goes away
		time.AfterFunc(time.Second, func() { H.CloseRoom(sessionID) })
	}
}

func (h *Hub) readPump(sessionID string, client *Client) {
	defer func() {
		h.Unregister(sessionID, client)
		client.Conn.Close()
	}()
	client.Conn.SetReadLimit(512)
	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
