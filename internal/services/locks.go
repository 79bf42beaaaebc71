package services

import "sync"

type roomLock struct {
	mu   sync.Mutex
	refs int
	gone bool
}

// RoomLocker hands out one mutex per room code so that every
// read-decide-write span on a room is linearized while distinct rooms
// proceed in parallel.
//
// Entries are ref-counted: an entry is only dropped from the map once
// no goroutine holds or waits on it. A Forget racing a blocked locker
// therefore never lets a second mutex be minted for the same code.
type RoomLocker struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

func NewRoomLocker() *RoomLocker {
	return &RoomLocker{locks: make(map[string]*roomLock)}
}

// Lock acquires the mutex for a room code and returns its unlock func.
func (l *RoomLocker) Lock(code string) func() {
	l.mu.Lock()
	rl, ok := l.locks[code]
	if !ok {
		rl = &roomLock{}
		l.locks[code] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 && rl.gone && l.locks[code] == rl {
			delete(l.locks, code)
		}
		l.mu.Unlock()
	}
}

// Forget marks the mutex of a deleted room for disposal. Entries still
// held or waited on stay in the map until their last unlock.
func (l *RoomLocker) Forget(code string) {
	l.mu.Lock()
	if rl, ok := l.locks[code]; ok {
		if rl.refs == 0 {
			delete(l.locks, code)
		} else {
			rl.gone = true
		}
	}
	l.mu.Unlock()
}
