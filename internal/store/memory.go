package store

import (
	"context"
	"sync"

	"songquiz/backend/internal/game"
)

// Memory is an in-process RoomStore. State is lost on restart and is not
// shared between instances.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]game.Room
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]game.Room)}
}

func (m *Memory) Get(ctx context.Context, code string) (game.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[code]
	if !ok {
		return game.Room{}, ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (m *Memory) Insert(ctx context.Context, room game.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Code]; ok {
		return ErrRoomExists
	}
	m.rooms[room.Code] = room.Clone()
	return nil
}

func (m *Memory) Save(ctx context.Context, room game.Room, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[room.Code]
	if !ok {
		return ErrRoomNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.rooms[room.Code] = room.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, code string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	delete(m.rooms, code)
	return nil
}

// Len reports how many rooms are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

var _ RoomStore = (*Memory)(nil)
