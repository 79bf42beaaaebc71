package handlers

import (
	"errors"
	"net/http"

	"planning-poker-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"operation successful"`
}

// respondError maps domain errors onto HTTP status codes. Anything
// outside the taxonomy is an internal failure.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, services.ErrParticipantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrSelfRemovalNotAllowed):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrPinRequired),
		errors.Is(err, services.ErrInvalidPin):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrVotingNotActive),
		errors.Is(err, services.ErrRoundStateConflict),
		errors.Is(err, services.ErrNoDiscussionNeeded),
		errors.Is(err, services.ErrDiscussionNotActive):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidVoteValue),
		errors.Is(err, services.ErrNotAParticipant):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("internal error")
		c.JSON(status, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
