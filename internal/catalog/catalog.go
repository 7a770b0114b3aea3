// Package catalog provides the read-only track list the round engine draws
// songs from.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"songquiz/backend/internal/game"
	"songquiz/backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Provider exposes the full catalog. It is loaded once and never mutated.
type Provider interface {
	ListTracks() []game.Track
}

// Static serves a fixed list.
type Static []game.Track

func (s Static) ListTracks() []game.Track {
	return s
}

// Load reads every track with its game and franchise from the database.
func Load(ctx context.Context, db *gorm.DB) (Static, error) {
	var rows []models.Track
	err := db.WithContext(ctx).
		Preload("Game.Franchise").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: load tracks: %w", err)
	}

	tracks := make(Static, 0, len(rows))
	for _, r := range rows {
		t := game.Track{
			Title:    r.Title,
			Game:     r.Game.Name,
			AudioURL: r.AudioURL,
		}
		if r.Game.Franchise != nil {
			t.Franchise = r.Game.Franchise.Name
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// SeedFile is the JSON layout of a catalog seed: a list of tracks.
type SeedFile struct {
	Tracks []game.Track `json:"tracks"`
}

// ReadSeed parses a seed file from disk.
func ReadSeed(path string) ([]game.Track, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed: %w", err)
	}
	var seed SeedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("catalog: parse seed %s: %w", path, err)
	}
	return seed.Tracks, nil
}

// Seed inserts tracks into an empty catalog. A catalog that already has
// tracks is left untouched and Seed reports 0.
func Seed(ctx context.Context, db *gorm.DB, tracks []game.Track) (int, error) {
	var existing int64
	if err := db.WithContext(ctx).Model(&models.Track{}).Count(&existing).Error; err != nil {
		return 0, fmt.Errorf("catalog: count tracks: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	inserted := 0
	games := map[string]uint{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		franchises := map[string]uint{}
		for _, t := range tracks {
			if t.Title == "" || t.Game == "" {
				return errors.New("catalog: seed track needs a title and a game")
			}

			gameID, ok := games[t.Game]
			if !ok {
				g := models.Game{Name: t.Game}
				if t.Franchise != "" {
					fid, ok := franchises[t.Franchise]
					if !ok {
						f := models.Franchise{Name: t.Franchise}
						if err := tx.Where(models.Franchise{Name: t.Franchise}).FirstOrCreate(&f).Error; err != nil {
							return err
						}
						fid = f.ID
						franchises[t.Franchise] = fid
					}
					g.FranchiseID = &fid
				}
				if err := tx.Where(models.Game{Name: t.Game}).Attrs(models.Game{FranchiseID: g.FranchiseID}).FirstOrCreate(&g).Error; err != nil {
					return err
				}
				gameID = g.ID
				games[t.Game] = gameID
			}

			if err := tx.Create(&models.Track{Title: t.Title, GameID: gameID, AudioURL: t.AudioURL}).Error; err != nil {
				return fmt.Errorf("catalog: insert %q (%s): %w", t.Title, t.Game, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().Int("tracks", inserted).Int("games", len(games)).Msg("Catalog seeded.")
	return inserted, nil
}
