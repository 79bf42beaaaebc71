package services

import "errors"

// Domain errors. All are terminal to the triggering command; nothing is
// retried by the services themselves.
var (
	ErrRoomNotFound          = errors.New("room not found")
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrForbidden             = errors.New("admin authority required")
	ErrPinRequired           = errors.New("admin PIN required")
	ErrInvalidPin            = errors.New("invalid admin PIN")
	ErrVotingNotActive       = errors.New("voting is not active")
	ErrRoundStateConflict    = errors.New("round state does not allow this transition")
	ErrInvalidVoteValue      = errors.New("vote value is not in the card set")
	ErrNoDiscussionNeeded    = errors.New("votes show no disagreement")
	ErrDiscussionNotActive   = errors.New("no active discussion")
	ErrSelfRemovalNotAllowed = errors.New("cannot remove own seat")
	ErrNotAParticipant       = errors.New("seat does not participate in voting")
)
