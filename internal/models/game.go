package models

import "gorm.io/gorm"

// Game is a video game whose soundtrack is part of the catalog.
type Game struct {
	gorm.Model
	Name        string `gorm:"size:255;unique;not null"`
	FranchiseID *uint  `gorm:"index"`

	Franchise *Franchise `gorm:"foreignKey:FranchiseID"`
	Tracks    []Track    `gorm:"foreignKey:GameID"`
}
