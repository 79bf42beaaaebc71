package handlers

import (
	"net/http"

	"planning-poker-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// PlayHandler serves the seat-token authenticated participant surface.
type PlayHandler struct {
	rooms  *services.RoomService
	rounds *services.RoundService
}

func NewPlayHandler(rooms *services.RoomService, rounds *services.RoundService) *PlayHandler {
	return &PlayHandler{rooms: rooms, rounds: rounds}
}

type CastVoteRequest struct {
	Value string `json:"value" binding:"required"`
}

type UpdateNameRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

type ParticipationRequest struct {
	Participating *bool `json:"participating" binding:"required"`
}

func (h *PlayHandler) GetState(c *gin.Context) {
	state, err := h.rooms.GetState(c.GetString("room_code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *PlayHandler) Heartbeat(c *gin.Context) {
	if err := h.rooms.Heartbeat(c.GetString("participant_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}

func (h *PlayHandler) Leave(c *gin.Context) {
	code := c.GetString("room_code")
	participantID := c.GetString("participant_id")

	if err := h.rooms.Leave(code, participantID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "left room"})
}

func (h *PlayHandler) UpdateName(c *gin.Context) {
	var req UpdateNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	code := c.GetString("room_code")
	participant, err := h.rooms.UpdateDisplayName(code, c.GetString("participant_id"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, participant)
}

func (h *PlayHandler) CastVote(c *gin.Context) {
	var req CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	code := c.GetString("room_code")
	participantID := c.GetString("participant_id")

	state, err := h.rounds.CastVote(code, participantID, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *PlayHandler) SetParticipation(c *gin.Context) {
	var req ParticipationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	code := c.GetString("room_code")
	participant, err := h.rooms.SetParticipation(code, c.GetString("participant_id"), *req.Participating)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, participant)
}
