package services

import (
	"time"

	"planning-poker-backend/internal/models"

	"gorm.io/gorm"
)

// RoomState is the snapshot broadcast to subscribers and returned from
// state queries. It is the only shape in which participant votes leave
// the store.
type RoomState struct {
	Code               string            `json:"code"`
	VotingState        string            `json:"voting_state"`
	DiscussionActive   bool              `json:"discussion_active"`
	HasPin             bool              `json:"has_pin"`
	AdminParticipantID string            `json:"admin_participant_id"`
	Participants       []ParticipantView `json:"participants"`
	VotesCast          int               `json:"votes_cast"`
	VotersTotal        int               `json:"voters_total"`
	MinVoterIDs        []string          `json:"min_voter_ids,omitempty"`
	MaxVoterIDs        []string          `json:"max_voter_ids,omitempty"`
}

type ParticipantView struct {
	ID                   string    `json:"id"`
	DisplayName          string    `json:"display_name"`
	IsAdmin              bool      `json:"is_admin"`
	ParticipatesInVoting bool      `json:"participates_in_voting"`
	HasVoted             bool      `json:"has_voted"`
	Vote                 *string   `json:"vote,omitempty"`
	JoinedAt             time.Time `json:"joined_at"`
}

func loadRoomState(db *gorm.DB, code string) (*RoomState, error) {
	var room models.Room
	if err := db.First(&room, "code = ?", code).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	var participants []models.Participant
	if err := db.Where("room_code = ?", code).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}
	return buildRoomState(&room, participants), nil
}

func buildRoomState(room *models.Room, participants []models.Participant) *RoomState {
	revealed := room.VotingState == models.VotingStateRevealed

	state := &RoomState{
		Code:               room.Code,
		VotingState:        room.VotingState,
		DiscussionActive:   room.DiscussionActive,
		HasPin:             room.HasPin(),
		AdminParticipantID: room.AdminParticipantID,
		Participants:       make([]ParticipantView, 0, len(participants)),
	}

	for i := range participants {
		p := &participants[i]
		view := ParticipantView{
			ID:                   p.ID,
			DisplayName:          p.DisplayName,
			IsAdmin:              p.IsAdmin,
			ParticipatesInVoting: p.ParticipatesInVoting,
			HasVoted:             p.HasVoted(),
			JoinedAt:             p.JoinedAt,
		}
		// Vote values stay hidden until the round is revealed; only the
		// cast/not-cast bit is public before that.
		if revealed && p.Vote != nil {
			v := *p.Vote
			view.Vote = &v
		}
		state.Participants = append(state.Participants, view)

		if p.ParticipatesInVoting {
			state.VotersTotal++
			if p.HasVoted() {
				state.VotesCast++
			}
		}
	}

	if room.DiscussionActive {
		state.MinVoterIDs, state.MaxVoterIDs, _ = voteSpread(participants)
	}
	return state
}

// voteSpread computes the seats holding the minimum and maximum numeric
// vote, plus the number of distinct numeric values cast. "?" votes are
// ignored.
func voteSpread(participants []models.Participant) (minIDs, maxIDs []string, distinct int) {
	var minVal, maxVal int
	seen := make(map[int]bool)

	for i := range participants {
		p := &participants[i]
		if p.Vote == nil {
			continue
		}
		n, ok := models.NumericVote(*p.Vote)
		if !ok {
			continue
		}
		if !seen[n] {
			seen[n] = true
			distinct++
		}
		switch {
		case len(minIDs) == 0:
			minVal, maxVal = n, n
			minIDs = []string{p.ID}
			maxIDs = []string{p.ID}
		default:
			if n < minVal {
				minVal = n
				minIDs = []string{p.ID}
			} else if n == minVal {
				minIDs = append(minIDs, p.ID)
			}
			if n > maxVal {
				maxVal = n
				maxIDs = []string{p.ID}
			} else if n == maxVal {
				maxIDs = append(maxIDs, p.ID)
			}
		}
	}
	// A single numeric value means min and max coincide: not a spread.
	if distinct < 2 {
		return nil, nil, distinct
	}
	return minIDs, maxIDs, distinct
}
