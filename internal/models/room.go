package models

import "time"

type Room struct {
	Code               string        `gorm:"primaryKey;size:10" json:"code"`
	AdminParticipantID string        `gorm:"size:36" json:"admin_participant_id"`
	AdminPinHash       string        `gorm:"size:60" json:"-"`
	VotingState        string        `gorm:"size:10;not null;default:'idle'" json:"voting_state"`
	DiscussionActive   bool          `gorm:"not null;default:false" json:"discussion_active"`
	Participants       []Participant `gorm:"foreignKey:RoomCode;references:Code" json:"participants,omitempty"`
	EmptySince         *time.Time    `json:"-"`
	CreatedAt          time.Time     `json:"created_at"`
}

const (
	VotingStateIdle     = "idle"
	VotingStateVoting   = "voting"
	VotingStateRevealed = "revealed"
)

func (r *Room) HasPin() bool {
	return r.AdminPinHash != ""
}
