package services

import (
	"errors"
	"sync"
	"testing"

	"planning-poker-backend/internal/models"
	"planning-poker-backend/internal/testutil"
	"planning-poker-backend/internal/ws"

	"gorm.io/gorm"
)

type roundFixture struct {
	db     *gorm.DB
	rooms  *RoomService
	rounds *RoundService
	hub    *recordingHub
	room   *models.Room
	admin  *models.Participant
	bob    *models.Participant
	carol  *models.Participant
}

func newRoundFixture(t *testing.T) *roundFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	locks := NewRoomLocker()
	hub := &recordingHub{}
	rooms := NewRoomService(db, locks, hub)
	rounds := NewRoundService(db, locks, hub)

	room, admin, err := rooms.CreateRoom("Alice", "")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	_, bob, err := rooms.JoinRoom(room.Code, "Bob", false, "")
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	_, carol, err := rooms.JoinRoom(room.Code, "Carol", false, "")
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	return &roundFixture{db: db, rooms: rooms, rounds: rounds, hub: hub, room: room, admin: admin, bob: bob, carol: carol}
}

func (f *roundFixture) mustStart(t *testing.T) {
	t.Helper()
	if _, err := f.rounds.StartVoting(f.room.Code, f.admin.ID); err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
}

func (f *roundFixture) mustVote(t *testing.T, participantID, value string) {
	t.Helper()
	if _, err := f.rounds.CastVote(f.room.Code, participantID, value); err != nil {
		t.Fatalf("CastVote(%s): %v", value, err)
	}
}

func (f *roundFixture) mustReveal(t *testing.T) {
	t.Helper()
	if _, err := f.rounds.Reveal(f.room.Code, f.admin.ID); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
}

func TestStartVoting(t *testing.T) {
	f := newRoundFixture(t)

	if _, err := f.rounds.StartVoting(f.room.Code, f.bob.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin start: err = %v, want ErrForbidden", err)
	}

	state, err := f.rounds.StartVoting(f.room.Code, f.admin.ID)
	if err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	if state.VotingState != models.VotingStateVoting {
		t.Errorf("state = %q, want voting", state.VotingState)
	}

	if _, err := f.rounds.StartVoting(f.room.Code, f.admin.ID); !errors.Is(err, ErrRoundStateConflict) {
		t.Errorf("start during voting: err = %v, want ErrRoundStateConflict", err)
	}
}

func TestStartVotingFromRevealedClearsVotes(t *testing.T) {
	f := newRoundFixture(t)
	f.mustStart(t)
	f.mustVote(t, f.bob.ID, "5")
	f.mustVote(t, f.carol.ID, "8")
	f.mustReveal(t)

	// A new round may begin straight from a revealed one.
	state, err := f.rounds.StartVoting(f.room.Code, f.admin.ID)
	if err != nil {
		t.Fatalf("StartVoting from revealed: %v", err)
	}
	if state.VotingState != models.VotingStateVoting {
		t.Errorf("state = %q, want voting", state.VotingState)
	}
	if state.VotesCast != 0 {
		t.Errorf("votes cast = %d, want 0 after re-start", state.VotesCast)
	}
}

func TestCastVote(t *testing.T) {
	f := newRoundFixture(t)

	if _, err := f.rounds.CastVote(f.room.Code, f.bob.ID, "5"); !errors.Is(err, ErrVotingNotActive) {
		t.Errorf("vote while idle: err = %v, want ErrVotingNotActive", err)
	}

	f.mustStart(t)

	if _, err := f.rounds.CastVote(f.room.Code, f.bob.ID, "4"); !errors.Is(err, ErrInvalidVoteValue) {
		t.Errorf("off-scale vote: err = %v, want ErrInvalidVoteValue", err)
	}

	state, err := f.rounds.CastVote(f.room.Code, f.bob.ID, "5")
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if state.VotesCast != 1 || state.VotersTotal != 3 {
		t.Errorf("count = %d/%d, want 1/3", state.VotesCast, state.VotersTotal)
	}

	// Recasting overwrites without touching anyone else.
	state, err = f.rounds.CastVote(f.room.Code, f.bob.ID, "13")
	if err != nil {
		t.Fatalf("recast: %v", err)
	}
	if state.VotesCast != 1 {
		t.Errorf("votes cast after recast = %d, want 1", state.VotesCast)
	}

	var stored models.Participant
	f.db.First(&stored, "id = ?", f.bob.ID)
	if stored.Vote == nil || *stored.Vote != "13" {
		t.Errorf("stored vote = %v, want 13", stored.Vote)
	}
}

func TestCastVoteOptedOutAdmin(t *testing.T) {
	f := newRoundFixture(t)
	f.mustStart(t)

	if _, err := f.rooms.SetParticipation(f.room.Code, f.admin.ID, false); err != nil {
		t.Fatalf("SetParticipation: %v", err)
	}
	if _, err := f.rounds.CastVote(f.room.Code, f.admin.ID, "5"); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("opted-out vote: err = %v, want ErrNotAParticipant", err)
	}
}

func TestRevealExposesVotes(t *testing.T) {
	f := newRoundFixture(t)

	if _, err := f.rounds.Reveal(f.room.Code, f.admin.ID); !errors.Is(err, ErrRoundStateConflict) {
		t.Errorf("reveal while idle: err = %v, want ErrRoundStateConflict", err)
	}

	f.mustStart(t)
	f.mustVote(t, f.bob.ID, "2")
	f.mustVote(t, f.carol.ID, "13")

	state, err := f.rounds.Reveal(f.room.Code, f.admin.ID)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if state.VotingState != models.VotingStateRevealed {
		t.Errorf("state = %q, want revealed", state.VotingState)
	}

	votes := make(map[string]string)
	for _, p := range state.Participants {
		if p.Vote != nil {
			votes[p.ID] = *p.Vote
		}
	}
	if votes[f.bob.ID] != "2" || votes[f.carol.ID] != "13" {
		t.Errorf("revealed votes = %v, want bob=2 carol=13", votes)
	}
}

func TestResetClearsRoundOnly(t *testing.T) {
	f := newRoundFixture(t)

	if _, err := f.rounds.Reset(f.room.Code, f.admin.ID); !errors.Is(err, ErrRoundStateConflict) {
		t.Errorf("reset while idle: err = %v, want ErrRoundStateConflict", err)
	}

	f.mustStart(t)
	f.mustVote(t, f.bob.ID, "5")

	state, err := f.rounds.Reset(f.room.Code, f.admin.ID)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if state.VotingState != models.VotingStateIdle || state.DiscussionActive {
		t.Errorf("post-reset state = %q/%v, want idle/false", state.VotingState, state.DiscussionActive)
	}
	if state.VotesCast != 0 {
		t.Errorf("votes survived reset: %d", state.VotesCast)
	}
	if len(state.Participants) != 3 {
		t.Errorf("roster size = %d, want 3 (reset must not touch the roster)", len(state.Participants))
	}
}

func TestHideForcesDiscussionOff(t *testing.T) {
	f := newRoundFixture(t)
	f.mustStart(t)
	f.mustVote(t, f.bob.ID, "2")
	f.mustVote(t, f.carol.ID, "13")
	f.mustReveal(t)

	if _, err := f.rounds.StartDiscussion(f.room.Code, f.admin.ID); err != nil {
		t.Fatalf("StartDiscussion: %v", err)
	}

	state, err := f.rounds.Hide(f.room.Code, f.admin.ID)
	if err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if state.VotingState != models.VotingStateVoting {
		t.Errorf("state = %q, want voting", state.VotingState)
	}
	if state.DiscussionActive {
		t.Error("hide must always end discussion")
	}
}

func TestDiscussionGating(t *testing.T) {
	t.Run("unanimous votes", func(t *testing.T) {
		f := newRoundFixture(t)
		f.mustStart(t)
		f.mustVote(t, f.bob.ID, "5")
		f.mustVote(t, f.carol.ID, "5")
		f.mustReveal(t)

		if _, err := f.rounds.StartDiscussion(f.room.Code, f.admin.ID); !errors.Is(err, ErrNoDiscussionNeeded) {
			t.Errorf("err = %v, want ErrNoDiscussionNeeded", err)
		}
	})

	t.Run("unknown marker does not count", func(t *testing.T) {
		f := newRoundFixture(t)
		f.mustStart(t)
		f.mustVote(t, f.bob.ID, "5")
		f.mustVote(t, f.carol.ID, "?")
		f.mustReveal(t)

		if _, err := f.rounds.StartDiscussion(f.room.Code, f.admin.ID); !errors.Is(err, ErrNoDiscussionNeeded) {
			t.Errorf("err = %v, want ErrNoDiscussionNeeded", err)
		}
	})

	t.Run("spread highlights min and max voters", func(t *testing.T) {
		f := newRoundFixture(t)
		f.mustStart(t)
		f.mustVote(t, f.admin.ID, "2")
		f.mustVote(t, f.bob.ID, "2")
		f.mustVote(t, f.carol.ID, "13")
		f.mustReveal(t)

		state, err := f.rounds.StartDiscussion(f.room.Code, f.admin.ID)
		if err != nil {
			t.Fatalf("StartDiscussion: %v", err)
		}
		if !state.DiscussionActive {
			t.Error("discussion not active after start")
		}
		if len(state.MinVoterIDs) != 2 {
			t.Errorf("min voter set size = %d, want 2", len(state.MinVoterIDs))
		}
		if len(state.MaxVoterIDs) != 1 || state.MaxVoterIDs[0] != f.carol.ID {
			t.Errorf("max voter set = %v, want [%s]", state.MaxVoterIDs, f.carol.ID)
		}
	})
}

func TestEndDiscussion(t *testing.T) {
	f := newRoundFixture(t)
	f.mustStart(t)
	f.mustVote(t, f.bob.ID, "2")
	f.mustVote(t, f.carol.ID, "13")
	f.mustReveal(t)

	if _, err := f.rounds.EndDiscussion(f.room.Code, f.admin.ID); !errors.Is(err, ErrDiscussionNotActive) {
		t.Errorf("end without start: err = %v, want ErrDiscussionNotActive", err)
	}

	if _, err := f.rounds.StartDiscussion(f.room.Code, f.admin.ID); err != nil {
		t.Fatalf("StartDiscussion: %v", err)
	}
	state, err := f.rounds.EndDiscussion(f.room.Code, f.admin.ID)
	if err != nil {
		t.Fatalf("EndDiscussion: %v", err)
	}
	if state.DiscussionActive {
		t.Error("discussion still active after end")
	}
	if state.VotingState != models.VotingStateRevealed {
		t.Errorf("state = %q, want revealed (end keeps the round revealed)", state.VotingState)
	}
}

func TestDenominatorFollowsParticipation(t *testing.T) {
	f := newRoundFixture(t)
	f.mustStart(t)
	f.mustVote(t, f.bob.ID, "5")

	state, _ := f.rooms.GetState(f.room.Code)
	if state.VotersTotal != 3 {
		t.Fatalf("denominator = %d, want 3", state.VotersTotal)
	}

	if _, err := f.rooms.SetParticipation(f.room.Code, f.admin.ID, false); err != nil {
		t.Fatalf("SetParticipation: %v", err)
	}
	state, _ = f.rooms.GetState(f.room.Code)
	if state.VotersTotal != 2 {
		t.Errorf("denominator = %d, want 2 after admin opt-out", state.VotersTotal)
	}
	if state.VotesCast != 1 {
		t.Errorf("numerator = %d, want 1", state.VotesCast)
	}
}

func TestConcurrentVotesAndReset(t *testing.T) {
	f := newRoundFixture(t)
	f.mustStart(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.rounds.CastVote(f.room.Code, f.bob.ID, "8")
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.rounds.Reset(f.room.Code, f.admin.ID)
	}()
	wg.Wait()

	// Whatever the interleaving, the room must land in a coherent state:
	// an idle round never retains votes.
	state, err := f.rooms.GetState(f.room.Code)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.VotingState == models.VotingStateIdle && state.VotesCast != 0 {
		t.Errorf("idle round retains %d votes", state.VotesCast)
	}

	// Snapshots are published under the room lock, so the last delta on
	// the stream must equal the store. Clients that apply deltas in
	// order never end on a stale view.
	last, ok := f.hub.lastByType(ws.TypeRoomStateChanged)
	if !ok {
		t.Fatal("no room_state_changed deltas recorded")
	}
	broadcastState, ok := last.Data.(*RoomState)
	if !ok {
		t.Fatalf("delta payload is %T, want *RoomState", last.Data)
	}
	if broadcastState.VotingState != state.VotingState || broadcastState.VotesCast != state.VotesCast {
		t.Errorf("last delta shows %s/%d votes, store holds %s/%d",
			broadcastState.VotingState, broadcastState.VotesCast,
			state.VotingState, state.VotesCast)
	}
}
