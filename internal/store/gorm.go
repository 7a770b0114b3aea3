package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"songquiz/backend/internal/game"
	"songquiz/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm keeps one row per room in the rooms table.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps an open connection. The rooms table must already be migrated.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Get(ctx context.Context, code string) (game.Room, error) {
	var rec models.RoomRecord
	err := g.db.WithContext(ctx).Where("code = ?", code).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return game.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return game.Room{}, fmt.Errorf("store: get room %s: %w", code, err)
	}
	room := rec.State
	room.Code = rec.Code
	room.Version = rec.Version
	return room, nil
}

func (g *Gorm) Insert(ctx context.Context, room game.Room) error {
	rec := models.RoomRecord{
		Code:    room.Code,
		Version: room.Version,
		State:   room,
	}
	// ON CONFLICT DO NOTHING keeps the check-and-insert atomic on both
	// postgres and sqlite.
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return fmt.Errorf("store: insert room %s: %w", room.Code, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomExists
	}
	return nil
}

func (g *Gorm) Save(ctx context.Context, room game.Room, expectedVersion int64) error {
	res := g.db.WithContext(ctx).
		Model(&models.RoomRecord{}).
		Where("code = ? AND version = ?", room.Code, expectedVersion).
		Select("Version", "State", "UpdatedAt").
		Updates(models.RoomRecord{Version: room.Version, State: room, UpdatedAt: time.Now()})
	if res.Error != nil {
		return fmt.Errorf("store: save room %s: %w", room.Code, res.Error)
	}
	if res.RowsAffected == 0 {
		return g.missOrConflict(ctx, room.Code)
	}
	return nil
}

func (g *Gorm) Delete(ctx context.Context, code string, expectedVersion int64) error {
	res := g.db.WithContext(ctx).
		Where("code = ? AND version = ?", code, expectedVersion).
		Delete(&models.RoomRecord{})
	if res.Error != nil {
		return fmt.Errorf("store: delete room %s: %w", code, res.Error)
	}
	if res.RowsAffected == 0 {
		return g.missOrConflict(ctx, code)
	}
	return nil
}

func (g *Gorm) missOrConflict(ctx context.Context, code string) error {
	var n int64
	if err := g.db.WithContext(ctx).Model(&models.RoomRecord{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return fmt.Errorf("store: check room %s: %w", code, err)
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return ErrVersionConflict
}

var _ RoomStore = (*Gorm)(nil)
