package models

import (
	"time"

	"songquiz/backend/internal/game"
)

// RoomRecord stores a whole room aggregate as one serialized row. Version is
// duplicated out of the blob so writes can compare-and-swap on it.
type RoomRecord struct {
	Code      string    `gorm:"primaryKey;size:6"`
	Version   int64     `gorm:"not null;default:0"`
	State     game.Room `gorm:"serializer:json;type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// TableName keeps the table name independent of the struct name.
func (RoomRecord) TableName() string {
	return "rooms"
}
