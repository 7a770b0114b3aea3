// Package store holds room aggregates keyed by room code.
package store

import (
	"context"
	"errors"

	"songquiz/backend/internal/game"
)

var (
	ErrRoomNotFound    = errors.New("store: room not found")
	ErrRoomExists      = errors.New("store: room code already taken")
	ErrVersionConflict = errors.New("store: room was modified concurrently")
)

// RoomStore persists whole rooms. Implementations must make Save a
// compare-and-swap on the stored version.
type RoomStore interface {
	// Get returns ErrRoomNotFound when no room has that code.
	Get(ctx context.Context, code string) (game.Room, error)

	// Insert stores a new room and fails with ErrRoomExists on a code collision.
	Insert(ctx context.Context, room game.Room) error

	// Save replaces the room only if the stored version still equals
	// expectedVersion, otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, room game.Room, expectedVersion int64) error

	// Delete removes the room if its stored version equals expectedVersion.
	Delete(ctx context.Context, code string, expectedVersion int64) error
}
