package models

import "time"

type Participant struct {
	ID                   string    `gorm:"primaryKey;size:36" json:"id"`
	RoomCode             string    `gorm:"size:10;not null;index" json:"room_code"`
	DisplayName          string    `gorm:"size:100;not null" json:"display_name"`
	IsAdmin              bool      `gorm:"not null;default:false" json:"is_admin"`
	Vote                 *string   `gorm:"size:4" json:"-"`
	ParticipatesInVoting bool      `gorm:"not null;default:true" json:"participates_in_voting"`
	LastHeartbeatAt      time.Time `gorm:"not null;index" json:"-"`
	JoinedAt             time.Time `json:"joined_at"`
}

func (p *Participant) HasVoted() bool {
	return p.Vote != nil
}
