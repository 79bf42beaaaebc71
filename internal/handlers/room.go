package handlers

import (
	"net/http"

	"planning-poker-backend/internal/services"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	rooms  *services.RoomService
	rounds *services.RoundService
	tokens *services.TokenService
}

func NewRoomHandler(rooms *services.RoomService, rounds *services.RoundService, tokens *services.TokenService) *RoomHandler {
	return &RoomHandler{rooms: rooms, rounds: rounds, tokens: tokens}
}

type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
	Pin  string `json:"pin" binding:"omitempty,min=4,max=32"`
}

type JoinRoomRequest struct {
	Code    string `json:"code" binding:"required"`
	Name    string `json:"name" binding:"required,min=1,max=100"`
	AsAdmin bool   `json:"as_admin"`
	Pin     string `json:"pin"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, admin, err := h.rooms.CreateRoom(req.Name, req.Pin)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.Generate(admin.ID, room.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	state, err := h.rooms.GetState(room.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room":        state,
		"participant": admin,
		"token":       token,
	})
}

func (h *RoomHandler) Join(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, participant, err := h.rooms.JoinRoom(req.Code, req.Name, req.AsAdmin, req.Pin)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.Generate(participant.ID, room.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	state, err := h.rooms.GetState(room.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":        state,
		"participant": participant,
		"token":       token,
	})
}

func (h *RoomHandler) roundOp(c *gin.Context, op func(code, requesterID string) (*services.RoomState, error)) {
	code := c.Param("code")
	requesterID := c.GetString("participant_id")

	state, err := op(code, requesterID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *RoomHandler) StartVoting(c *gin.Context)     { h.roundOp(c, h.rounds.StartVoting) }
func (h *RoomHandler) Reveal(c *gin.Context)          { h.roundOp(c, h.rounds.Reveal) }
func (h *RoomHandler) Hide(c *gin.Context)            { h.roundOp(c, h.rounds.Hide) }
func (h *RoomHandler) Reset(c *gin.Context)           { h.roundOp(c, h.rounds.Reset) }
func (h *RoomHandler) StartDiscussion(c *gin.Context) { h.roundOp(c, h.rounds.StartDiscussion) }
func (h *RoomHandler) EndDiscussion(c *gin.Context)   { h.roundOp(c, h.rounds.EndDiscussion) }

func (h *RoomHandler) RemoveParticipant(c *gin.Context) {
	code := services.NormalizeCode(c.Param("code"))
	requesterID := c.GetString("participant_id")
	targetID := c.Param("id")

	if err := h.rooms.RemoveParticipant(code, requesterID, targetID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "participant removed"})
}

func (h *RoomHandler) CloseRoom(c *gin.Context) {
	code := services.NormalizeCode(c.Param("code"))
	requesterID := c.GetString("participant_id")

	if err := h.rooms.CloseRoom(code, requesterID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "room closed"})
}
