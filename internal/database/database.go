package database

import (
	"fmt"
	"time"

	"songquiz/backend/internal/logger"
	"songquiz/backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to postgres or sqlite and runs migrations.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("database: unknown driver %q", driver)
	}

	// Configure GORM logger
	customLogger := gormlogger.New(
		logger.Printer("gorm"),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: customLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	if driver != "postgres" {
		// sqlite allows a single writer; serialize through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the catalog and room tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(&models.Franchise{}, &models.Game{}, &models.Track{}, &models.RoomRecord{})
	if err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// Connect initializes the global connection or exits.
func Connect(driver, dsn string) {
	db, err := Open(driver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", driver).Msg("Failed to connect to database")
	}
	DB = db
	log.Info().Str("driver", driver).Msg("Database connection established and migrated.")
}
