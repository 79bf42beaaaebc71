package handlers

import (
	"net/http"

	"planning-poker-backend/internal/services"
	"planning-poker-backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type WSHandler struct {
	rooms  *services.RoomService
	tokens *services.TokenService
	hub    *ws.Hub
}

func NewWSHandler(rooms *services.RoomService, tokens *services.TokenService, hub *ws.Hub) *WSHandler {
	return &WSHandler{rooms: rooms, tokens: tokens, hub: hub}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleRoomWebSocket subscribes a client to a room's delta stream. A
// seat token passed as ?token= binds the connection to its seat so
// targeted deltas (removal) can reach it; without one the connection is
// a plain observer.
func (h *WSHandler) HandleRoomWebSocket(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	var participantID string
	if token := c.Query("token"); token != "" {
		if pid, code, err := h.tokens.Validate(token); err == nil && code == room.Code {
			participantID = pid
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	h.hub.AddConnection(room.Code, participantID, conn)
	defer h.hub.RemoveConnection(room.Code, conn)

	// New subscribers start from the authoritative snapshot, delivered
	// under the room lock so it slots into the stream in commit order.
	h.rooms.PublishSnapshot(room.Code, func(state *services.RoomState) {
		h.hub.Send(room.Code, conn, ws.Message{Type: ws.TypeRoomStateChanged, Data: state})
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
