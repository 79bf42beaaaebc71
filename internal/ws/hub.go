package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Delta types pushed to room subscribers.
const (
	TypeParticipantJoined  = "participant_joined"
	TypeParticipantLeft    = "participant_left"
	TypeParticipantUpdated = "participant_updated"
	TypeRoomStateChanged   = "room_state_changed"
	TypeRemoved            = "removed"
	TypeRoomClosed         = "room_closed"
)

type Message struct {
	Type string      `json:"type"`
	Seq  uint64      `json:"seq"`
	Data interface{} `json:"data"`
}

type subscriber struct {
	conn          *websocket.Conn
	participantID string
}

// Hub fans room deltas out to every live subscriber. Broadcast holds the
// hub lock for the whole write pass, so any two subscribers of one room
// observe deltas in the same order; seq numbers the stream per room so
// clients can drop duplicate deliveries.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*websocket.Conn]*subscriber
	seq   map[string]uint64
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*websocket.Conn]*subscriber),
		seq:   make(map[string]uint64),
	}
}

// AddConnection subscribes a connection to a room's delta stream. The
// participantID may be empty for observers that hold no seat.
func (h *Hub) AddConnection(roomCode, participantID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[*websocket.Conn]*subscriber)
	}
	h.rooms[roomCode][conn] = &subscriber{conn: conn, participantID: participantID}
	log.Debug().Str("room", roomCode).Int("subscribers", len(h.rooms[roomCode])).Msg("ws: client subscribed")
}

func (h *Hub) RemoveConnection(roomCode string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[roomCode]; ok {
		delete(subs, conn)
		conn.Close()
		if len(subs) == 0 {
			delete(h.rooms, roomCode)
			delete(h.seq, roomCode)
		}
		log.Debug().Str("room", roomCode).Msg("ws: client unsubscribed")
	}
}

// Broadcast delivers a delta to every subscriber of a room, including
// the issuer's own connections. Connections that fail to take the write
// are dropped.
func (h *Hub) Broadcast(roomCode string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.send(roomCode, msg, "")
}

// SendToParticipant delivers a delta only to the connections a given
// seat holds, e.g. the removal signal for a kicked participant.
func (h *Hub) SendToParticipant(roomCode, participantID string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.send(roomCode, msg, participantID)
}

func (h *Hub) send(roomCode string, msg Message, onlyParticipant string) {
	subs, ok := h.rooms[roomCode]
	if !ok {
		return
	}

	h.seq[roomCode]++
	msg.Seq = h.seq[roomCode]

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("room", roomCode).Msg("ws: marshal error")
		return
	}

	for conn, sub := range subs {
		if onlyParticipant != "" && sub.participantID != onlyParticipant {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("room", roomCode).Msg("ws: write error, dropping connection")
			conn.Close()
			delete(subs, conn)
		}
	}
}

// Send writes a message to one subscribed connection, serialized with
// the room's broadcast stream.
func (h *Hub) Send(roomCode string, conn *websocket.Conn, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomCode]
	if !ok {
		return
	}
	if _, ok := subs[conn]; !ok {
		return
	}

	h.seq[roomCode]++
	msg.Seq = h.seq[roomCode]

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("room", roomCode).Msg("ws: marshal error")
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		delete(subs, conn)
	}
}

// SubscriberCount reports the live connections for a room.
func (h *Hub) SubscriberCount(roomCode string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomCode])
}
