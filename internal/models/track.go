package models

import "gorm.io/gorm"

// Track is one song of a game's soundtrack. A title is unique within its game.
type Track struct {
	gorm.Model
	Title    string `gorm:"size:255;not null;uniqueIndex:idx_tracks_game_title"`
	GameID   uint   `gorm:"not null;uniqueIndex:idx_tracks_game_title"`
	AudioURL string `gorm:"size:512"`

	Game Game `gorm:"foreignKey:GameID"`
}
