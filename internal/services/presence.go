package services

import (
	"time"

	"planning-poker-backend/internal/models"
	"planning-poker-backend/internal/ws"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Broadcaster is the slice of the fan-out hub the services need.
// Services emit deltas while still holding the room lock, so the delta
// order every subscriber observes equals the commit order.
type Broadcaster interface {
	Broadcast(roomCode string, msg ws.Message)
	SendToParticipant(roomCode, participantID string, msg ws.Message)
}

// PresenceTracker infers departure from heartbeat age. Clients bump
// last_heartbeat_at every few seconds; a periodic sweep evicts any seat
// whose heartbeat is older than the liveness window, through the same
// removal path as an explicit leave. Transport-level disconnects are
// deliberately ignored: they may never fire on unclean network loss.
type PresenceTracker struct {
	db       *gorm.DB
	locks    *RoomLocker
	hub      Broadcaster
	clock    clockwork.Clock
	interval time.Duration
	window   time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewPresenceTracker(db *gorm.DB, locks *RoomLocker, hub Broadcaster, clock clockwork.Clock, interval, window time.Duration) *PresenceTracker {
	return &PresenceTracker{
		db:       db,
		locks:    locks,
		hub:      hub,
		clock:    clock,
		interval: interval,
		window:   window,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (t *PresenceTracker) Start() {
	go t.run()
	log.Info().
		Dur("interval", t.interval).
		Dur("window", t.window).
		Msg("presence tracker started")
}

func (t *PresenceTracker) Stop() {
	close(t.stopCh)
	<-t.doneCh
	log.Info().Msg("presence tracker stopped")
}

func (t *PresenceTracker) run() {
	defer close(t.doneCh)
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			t.Sweep()
		case <-t.stopCh:
			return
		}
	}
}

// Sweep scans every room once and evicts stale seats. Exported so tests
// can drive it without the ticker.
func (t *PresenceTracker) Sweep() {
	var codes []string
	if err := t.db.Model(&models.Room{}).Pluck("code", &codes).Error; err != nil {
		log.Error().Err(err).Msg("presence sweep: listing rooms")
		return
	}
	for _, code := range codes {
		t.sweepRoom(code)
	}
}

func (t *PresenceTracker) sweepRoom(code string) {
	unlock := t.locks.Lock(code)

	now := t.clock.Now()
	cutoff := now.Add(-t.window)

	var room models.Room
	if err := t.db.First(&room, "code = ?", code).Error; err != nil {
		unlock()
		return
	}

	var stale []models.Participant
	if err := t.db.Where("room_code = ? AND last_heartbeat_at < ?", code, cutoff).
		Find(&stale).Error; err != nil {
		unlock()
		log.Error().Err(err).Str("room", code).Msg("presence sweep: loading stale seats")
		return
	}

	var evicted []models.Participant
	for _, p := range stale {
		res := t.db.Delete(&models.Participant{}, "id = ?", p.ID)
		if res.Error != nil {
			log.Error().Err(res.Error).Str("participant", p.ID).Msg("presence sweep: evicting")
			continue
		}
		// RowsAffected 0 means an explicit removal won the race; the
		// seat is absent either way and gets no second delta.
		if res.RowsAffected > 0 {
			evicted = append(evicted, p)
		}
	}

	var remaining int64
	if err := t.db.Model(&models.Participant{}).
		Where("room_code = ?", code).
		Count(&remaining).Error; err != nil {
		unlock()
		return
	}

	reaped := false
	switch {
	case remaining == 0 && room.EmptySince == nil:
		// An empty room survives one liveness window before reaping, so
		// a creator who left by mistake can still rejoin by code.
		t.db.Model(&room).Update("empty_since", now)
	case remaining == 0 && now.Sub(*room.EmptySince) >= t.window:
		if err := t.db.Delete(&models.Room{}, "code = ?", code).Error; err == nil {
			reaped = true
		}
	case remaining > 0 && room.EmptySince != nil:
		t.db.Model(&room).Update("empty_since", nil)
	}

	// Deltas go out before the lock is released so the stream order
	// matches the commit order.
	for _, p := range evicted {
		log.Info().Str("room", code).Str("participant", p.ID).Msg("evicted stale seat")
		t.hub.Broadcast(code, ws.Message{
			Type: ws.TypeParticipantLeft,
			Data: map[string]string{"participant_id": p.ID},
		})
	}
	if !reaped && len(evicted) > 0 {
		if state, err := loadRoomState(t.db, code); err == nil {
			t.hub.Broadcast(code, ws.Message{Type: ws.TypeRoomStateChanged, Data: state})
		}
	}
	unlock()

	if reaped {
		t.locks.Forget(code)
		log.Info().Str("room", code).Msg("reaped empty room")
	}
}
