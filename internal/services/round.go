package services

import (
	"planning-poker-backend/internal/models"
	"planning-poker-backend/internal/ws"

	"gorm.io/gorm"
)

// RoundService drives the voting round state machine:
// idle -> voting -> revealed -> idle, with discussion as a sub-flag of
// the revealed state. All round control requires the admin seat.
type RoundService struct {
	db    *gorm.DB
	locks *RoomLocker
	hub   Broadcaster
}

func NewRoundService(db *gorm.DB, locks *RoomLocker, hub Broadcaster) *RoundService {
	return &RoundService{db: db, locks: locks, hub: hub}
}

// publishState loads the fresh snapshot and emits it. Callers hold the
// room lock, so subscribers see transitions in commit order.
func (s *RoundService) publishState(code string) (*RoomState, error) {
	state, err := loadRoomState(s.db, code)
	if err != nil {
		return nil, err
	}
	s.hub.Broadcast(code, ws.Message{Type: ws.TypeRoomStateChanged, Data: state})
	return state, nil
}

func (s *RoundService) loadRoom(code string) (*models.Room, error) {
	var room models.Room
	if err := s.db.First(&room, "code = ?", code).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// StartVoting opens a new round. Valid from idle or revealed: a new
// round may start straight from a revealed one, re-clearing all votes.
func (s *RoundService) StartVoting(code, requesterID string) (*RoomState, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.loadRoom(code)
	if err != nil {
		return nil, err
	}
	if room.AdminParticipantID != requesterID {
		return nil, ErrForbidden
	}
	if room.VotingState == models.VotingStateVoting {
		return nil, ErrRoundStateConflict
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Participant{}).
			Where("room_code = ?", code).
			Update("vote", nil).Error; err != nil {
			return err
		}
		return tx.Model(room).Updates(map[string]interface{}{
			"voting_state":      models.VotingStateVoting,
			"discussion_active": false,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.publishState(code)
}

// CastVote records a participant's card. Recasting overwrites the
// previous value; nothing else changes.
func (s *RoundService) CastVote(code, participantID, value string) (*RoomState, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.loadRoom(code)
	if err != nil {
		return nil, err
	}
	if room.VotingState != models.VotingStateVoting {
		return nil, ErrVotingNotActive
	}
	if !models.IsValidVote(value) {
		return nil, ErrInvalidVoteValue
	}

	var participant models.Participant
	if err := s.db.First(&participant, "id = ? AND room_code = ?", participantID, code).Error; err != nil {
		return nil, ErrParticipantNotFound
	}
	if !participant.ParticipatesInVoting {
		return nil, ErrNotAParticipant
	}

	participant.Vote = &value
	if err := s.db.Save(&participant).Error; err != nil {
		return nil, err
	}

	// Only the cast/not-cast bit is public until reveal.
	s.hub.Broadcast(code, ws.Message{
		Type: ws.TypeParticipantUpdated,
		Data: map[string]string{"participant_id": participantID},
	})
	return s.publishState(code)
}

// Reveal exposes all cast votes.
func (s *RoundService) Reveal(code, requesterID string) (*RoomState, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.loadRoom(code)
	if err != nil {
		return nil, err
	}
	if room.AdminParticipantID != requesterID {
		return nil, ErrForbidden
	}
	if room.VotingState != models.VotingStateVoting {
		return nil, ErrRoundStateConflict
	}

	if err := s.db.Model(room).Update("voting_state", models.VotingStateRevealed).Error; err != nil {
		return nil, err
	}
	return s.publishState(code)
}

// Hide returns a revealed round to voting and ends any active
// discussion.
func (s *RoundService) Hide(code, requesterID string) (*RoomState, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.loadRoom(code)
	if err != nil {
		return nil, err
	}
	if room.AdminParticipantID != requesterID {
		return nil, ErrForbidden
	}
	if room.VotingState != models.VotingStateRevealed {
		return nil, ErrRoundStateConflict
	}

	if err := s.db.Model(room).Updates(map[string]interface{}{
		"voting_state":      models.VotingStateVoting,
		"discussion_active": false,
	}).Error; err != nil {
		return nil, err
	}
	return s.publishState(code)
}

// Reset clears the round back to idle. The roster is untouched; only
// vote state goes.
func (s *RoundService) Reset(code, requesterID string) (*RoomState, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.loadRoom(code)
	if err != nil {
		return nil, err
	}
	if room.AdminParticipantID != requesterID {
		return nil, ErrForbidden
	}
	if room.VotingState == models.VotingStateIdle {
		return nil, ErrRoundStateConflict
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Participant{}).
			Where("room_code = ?", code).
			Update("vote", nil).Error; err != nil {
			return err
		}
		return tx.Model(room).Updates(map[string]interface{}{
			"voting_state":      models.VotingStateIdle,
			"discussion_active": false,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.publishState(code)
}

// StartDiscussion enters discussion mode on a revealed round. It needs
// at least two distinct numeric votes on the table; unanimous rounds
// have nothing to discuss.
func (s *RoundService) StartDiscussion(code, requesterID string) (*RoomState, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.loadRoom(code)
	if err != nil {
		return nil, err
	}
	if room.AdminParticipantID != requesterID {
		return nil, ErrForbidden
	}
	if room.VotingState != models.VotingStateRevealed {
		return nil, ErrRoundStateConflict
	}

	var participants []models.Participant
	if err := s.db.Where("room_code = ?", code).Find(&participants).Error; err != nil {
		return nil, err
	}
	if _, _, distinct := voteSpread(participants); distinct < 2 {
		return nil, ErrNoDiscussionNeeded
	}

	if err := s.db.Model(room).Update("discussion_active", true).Error; err != nil {
		return nil, err
	}
	return s.publishState(code)
}

// EndDiscussion leaves discussion mode while keeping the round revealed.
func (s *RoundService) EndDiscussion(code, requesterID string) (*RoomState, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.loadRoom(code)
	if err != nil {
		return nil, err
	}
	if room.AdminParticipantID != requesterID {
		return nil, ErrForbidden
	}
	if !room.DiscussionActive {
		return nil, ErrDiscussionNotActive
	}

	if err := s.db.Model(room).Update("discussion_active", false).Error; err != nil {
		return nil, err
	}
	return s.publishState(code)
}
