package models

import "gorm.io/gorm"

// Franchise groups games of the same series (e.g., "Zelda", "Sonic").
type Franchise struct {
	gorm.Model
	Name string `gorm:"size:100;unique;not null"`
}
