package services

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"planning-poker-backend/internal/models"
	"planning-poker-backend/internal/ws"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 6
)

type RoomService struct {
	db    *gorm.DB
	locks *RoomLocker
	hub   Broadcaster
}

func NewRoomService(db *gorm.DB, locks *RoomLocker, hub Broadcaster) *RoomService {
	return &RoomService{db: db, locks: locks, hub: hub}
}

// CreateRoom allocates a fresh room with the creator holding the admin
// seat. An empty pin leaves the room unprotected.
func (s *RoomService) CreateRoom(creatorName, pin string) (*models.Room, *models.Participant, error) {
	var pinHash string
	if pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, err
		}
		pinHash = string(hash)
	}

	code, err := s.generateUniqueCode()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	admin := models.Participant{
		ID:                   uuid.NewString(),
		RoomCode:             code,
		DisplayName:          creatorName,
		IsAdmin:              true,
		ParticipatesInVoting: true,
		LastHeartbeatAt:      now,
		JoinedAt:             now,
	}
	room := models.Room{
		Code:               code,
		AdminParticipantID: admin.ID,
		AdminPinHash:       pinHash,
		VotingState:        models.VotingStateIdle,
		CreatedAt:          now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&admin).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &room, &admin, nil
}

// NormalizeCode makes user-supplied room codes lookup-safe: surrounding
// whitespace is trimmed and the code is uppercased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *RoomService) GetRoom(code string) (*models.Room, error) {
	var room models.Room
	if err := s.db.First(&room, "code = ?", NormalizeCode(code)).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// GetState builds the authoritative room snapshot. Vote values are
// withheld unless the round is revealed; vote counts are always exposed.
func (s *RoomService) GetState(code string) (*RoomState, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()
	return loadRoomState(s.db, code)
}

// PublishSnapshot hands the current snapshot to publish while holding
// the room lock, so it lands in the delta stream at its true position
// in commit order. Used for the initial snapshot of new subscribers.
func (s *RoomService) PublishSnapshot(code string, publish func(*RoomState)) error {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	state, err := loadRoomState(s.db, code)
	if err != nil {
		return err
	}
	publish(state)
	return nil
}

// broadcastState emits the fresh snapshot. Callers hold the room lock,
// so the delta order on the wire equals the commit order in the store.
func (s *RoomService) broadcastState(code string) {
	if state, err := loadRoomState(s.db, code); err == nil {
		s.hub.Broadcast(code, ws.Message{Type: ws.TypeRoomStateChanged, Data: state})
	}
}

// JoinRoom adds an ordinary participant, or reclaims the admin seat when
// asAdmin is set (see ClaimAdminSeat). On credential failure no
// participant is created.
func (s *RoomService) JoinRoom(code, name string, asAdmin bool, pin string) (*models.Room, *models.Participant, error) {
	code = NormalizeCode(code)
	if asAdmin {
		return s.claimAdminSeat(code, name, pin)
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	var room models.Room
	if err := s.db.First(&room, "code = ?", code).Error; err != nil {
		return nil, nil, ErrRoomNotFound
	}

	now := time.Now()
	participant := models.Participant{
		ID:                   uuid.NewString(),
		RoomCode:             room.Code,
		DisplayName:          name,
		ParticipatesInVoting: true,
		LastHeartbeatAt:      now,
		JoinedAt:             now,
	}
	if err := s.db.Create(&participant).Error; err != nil {
		return nil, nil, err
	}
	// A rejoin cancels any pending empty-room reap.
	if room.EmptySince != nil {
		if err := s.db.Model(&room).Update("empty_since", nil).Error; err != nil {
			return nil, nil, err
		}
	}

	s.hub.Broadcast(code, ws.Message{Type: ws.TypeParticipantJoined, Data: &participant})
	s.broadcastState(code)
	return &room, &participant, nil
}

// ClaimAdminSeat binds a new physical connection to the existing admin
// seat of a PIN-protected room. The seat's display name is updated and
// its participant ID is reused, so the roster never grows and tokens
// issued to earlier admin connections stay valid.
func (s *RoomService) ClaimAdminSeat(code, name, pin string) (*models.Room, *models.Participant, error) {
	return s.claimAdminSeat(NormalizeCode(code), name, pin)
}

func (s *RoomService) claimAdminSeat(code, name, pin string) (*models.Room, *models.Participant, error) {
	unlock := s.locks.Lock(code)
	defer unlock()

	var room models.Room
	if err := s.db.First(&room, "code = ?", code).Error; err != nil {
		return nil, nil, ErrRoomNotFound
	}

	// A room without a PIN has no reclaimable seat: the admin identity
	// is only provable by PIN possession.
	if !room.HasPin() || pin == "" {
		return nil, nil, ErrPinRequired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(room.AdminPinHash), []byte(pin)); err != nil {
		return nil, nil, ErrInvalidPin
	}

	var admin models.Participant
	if err := s.db.First(&admin, "id = ?", room.AdminParticipantID).Error; err != nil {
		return nil, nil, ErrParticipantNotFound
	}

	admin.DisplayName = name
	admin.LastHeartbeatAt = time.Now()
	if err := s.db.Save(&admin).Error; err != nil {
		return nil, nil, err
	}

	// The reclaim renames the existing seat; the roster is unchanged.
	s.hub.Broadcast(code, ws.Message{
		Type: ws.TypeParticipantUpdated,
		Data: map[string]string{"participant_id": admin.ID},
	})
	s.broadcastState(code)
	return &room, &admin, nil
}

// Heartbeat bumps the seat's liveness timestamp.
func (s *RoomService) Heartbeat(participantID string) error {
	res := s.db.Model(&models.Participant{}).
		Where("id = ?", participantID).
		Update("last_heartbeat_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// Leave removes the caller's own seat. Already-gone seats are not an
// error: an eviction may have raced the explicit leave.
func (s *RoomService) Leave(code, participantID string) error {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	res := s.db.Delete(&models.Participant{}, "id = ? AND room_code = ?", participantID, code)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrParticipantNotFound
	}

	s.hub.Broadcast(code, ws.Message{
		Type: ws.TypeParticipantLeft,
		Data: map[string]string{"participant_id": participantID},
	})
	s.broadcastState(code)
	return nil
}

// RemoveParticipant is the admin-initiated removal path.
func (s *RoomService) RemoveParticipant(code, requesterID, targetID string) error {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	var room models.Room
	if err := s.db.First(&room, "code = ?", code).Error; err != nil {
		return ErrRoomNotFound
	}
	if room.AdminParticipantID != requesterID {
		return ErrForbidden
	}
	if targetID == requesterID {
		return ErrSelfRemovalNotAllowed
	}

	res := s.db.Delete(&models.Participant{}, "id = ? AND room_code = ?", targetID, code)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrParticipantNotFound
	}

	// Signal the kicked client first so it leaves the room view instead
	// of interpreting the roster delta.
	s.hub.SendToParticipant(code, targetID, ws.Message{Type: ws.TypeRemoved, Data: nil})
	s.hub.Broadcast(code, ws.Message{
		Type: ws.TypeParticipantLeft,
		Data: map[string]string{"participant_id": targetID},
	})
	s.broadcastState(code)
	return nil
}

// UpdateDisplayName renames the caller's own seat.
func (s *RoomService) UpdateDisplayName(code, participantID, name string) (*models.Participant, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	var participant models.Participant
	if err := s.db.First(&participant, "id = ? AND room_code = ?", participantID, code).Error; err != nil {
		return nil, ErrParticipantNotFound
	}
	participant.DisplayName = name
	if err := s.db.Save(&participant).Error; err != nil {
		return nil, err
	}

	s.hub.Broadcast(code, ws.Message{Type: ws.TypeParticipantUpdated, Data: &participant})
	s.broadcastState(code)
	return &participant, nil
}

// SetParticipation toggles the admin's own voting opt-in. Ordinary seats
// always participate and cannot be toggled. Opting out discards any
// pending vote, shrinking the round's denominator.
func (s *RoomService) SetParticipation(code, participantID string, participating bool) (*models.Participant, error) {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)
	defer unlock()

	var room models.Room
	if err := s.db.First(&room, "code = ?", code).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	if room.AdminParticipantID != participantID {
		return nil, ErrForbidden
	}

	var participant models.Participant
	if err := s.db.First(&participant, "id = ?", participantID).Error; err != nil {
		return nil, ErrParticipantNotFound
	}
	participant.ParticipatesInVoting = participating
	if !participating {
		participant.Vote = nil
	}
	if err := s.db.Save(&participant).Error; err != nil {
		return nil, err
	}

	s.hub.Broadcast(code, ws.Message{Type: ws.TypeParticipantUpdated, Data: &participant})
	s.broadcastState(code)
	return &participant, nil
}

// CloseRoom deletes the room and its roster, signalling subscribers
// with a room_closed delta.
func (s *RoomService) CloseRoom(code, requesterID string) error {
	code = NormalizeCode(code)
	unlock := s.locks.Lock(code)

	var room models.Room
	if err := s.db.First(&room, "code = ?", code).Error; err != nil {
		unlock()
		return ErrRoomNotFound
	}
	if room.AdminParticipantID != requesterID {
		unlock()
		return ErrForbidden
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Participant{}, "room_code = ?", code).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, "code = ?", code).Error
	})
	if err != nil {
		unlock()
		return err
	}

	s.hub.Broadcast(code, ws.Message{Type: ws.TypeRoomClosed, Data: nil})
	unlock()
	s.locks.Forget(code)
	return nil
}

func (s *RoomService) generateUniqueCode() (string, error) {
	for {
		code, err := randomCode(roomCodeLength)
		if err != nil {
			return "", err
		}
		var count int64
		if err := s.db.Model(&models.Room{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.New("room code generation failed")
		}
		b[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}
