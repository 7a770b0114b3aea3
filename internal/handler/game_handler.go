package handler

import (
	"net/http"
	"strconv"
	"strings"

	"songquiz/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CatalogHandler serves the read-only track catalog for client autocomplete.
type CatalogHandler struct {
	db *gorm.DB
}

func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db}
}

// Register mounts the catalog routes on rg.
func (h *CatalogHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/tracks", h.GetTracks)
	rg.GET("/games", h.GetGames)
}

// region --- DTOs ---

type TrackResponse struct {
	ID        uint   `json:"id"`
	Title     string `json:"title" example:"Gerudo Valley"`
	Game      string `json:"game" example:"The Legend of Zelda: Ocarina of Time"`
	Franchise string `json:"franchise,omitempty" example:"Zelda"`
}

func newTrackResponse(track models.Track) TrackResponse {
	resp := TrackResponse{
		ID:    track.ID,
		Title: track.Title,
		Game:  track.Game.Name,
	}
	if track.Game.Franchise != nil {
		resp.Franchise = track.Game.Franchise.Name
	}
	return resp
}

type GameResponse struct {
	ID         uint   `json:"id"`
	Name       string `json:"name" example:"Tetris"`
	Franchise  string `json:"franchise,omitempty"`
	TrackCount int64  `json:"track_count"`
}

// PaginatedTrackResponse defines the structure for a paginated list of tracks.
type PaginatedTrackResponse struct {
	Data []TrackResponse `json:"data"`
	Meta PaginationMeta  `json:"meta"`
}

// PaginatedGameResponse defines the structure for a paginated list of games.
type PaginatedGameResponse struct {
	Data []GameResponse `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// endregion

// region --- Public Handlers ---

// GetTracks godoc
// @Summary      Get a list of tracks
// @Description  Retrieves a paginated list of catalog tracks, optionally filtered by title or game name.
// @Tags         catalog
// @Produce      json
// @Param        q     query string false "Search query for title or game"
// @Param        page  query int    false "Page number" default(1)
// @Param        limit query int    false "Items per page" default(10)
// @Success      200 {object} PaginatedTrackResponse
// @Failure      500 {object} ErrorResponse
// @Router       /tracks [get]
func (h *CatalogHandler) GetTracks(c *gin.Context) {
	page, limit := pageParams(c)

	dbQuery := h.db.WithContext(c.Request.Context()).Model(&models.Track{})
	if q := likePattern(c.Query("q")); q != "" {
		games := h.db.Model(&models.Game{}).Select("id").Where("LOWER(name) LIKE ?", q)
		dbQuery = dbQuery.Where("LOWER(title) LIKE ? OR game_id IN (?)", q, games)
	}

	result, err := Paginate[models.Track](dbQuery.Order("id"), page, limit, "Game.Franchise")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tracks"})
		return
	}

	response := make([]TrackResponse, 0, len(result.Data))
	for _, track := range result.Data {
		response = append(response, newTrackResponse(track))
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(response, result.Meta.TotalItems, page, limit))
}

// GetGames godoc
// @Summary      Get a list of games
// @Description  Retrieves a paginated list of games with their franchise and track count, optionally filtered by name.
// @Tags         catalog
// @Produce      json
// @Param        q     query string false "Search query for game name"
// @Param        page  query int    false "Page number" default(1)
// @Param        limit query int    false "Items per page" default(10)
// @Success      200 {object} PaginatedGameResponse
// @Failure      500 {object} ErrorResponse
// @Router       /games [get]
func (h *CatalogHandler) GetGames(c *gin.Context) {
	page, limit := pageParams(c)

	dbQuery := h.db.WithContext(c.Request.Context()).Model(&models.Game{})
	if q := likePattern(c.Query("q")); q != "" {
		dbQuery = dbQuery.Where("LOWER(name) LIKE ?", q)
	}

	result, err := Paginate[models.Game](dbQuery.Order("name"), page, limit, "Franchise")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve games"})
		return
	}

	ids := make([]uint, 0, len(result.Data))
	for _, g := range result.Data {
		ids = append(ids, g.ID)
	}
	var counts []struct {
		GameID uint
		N      int64
	}
	if len(ids) > 0 {
		err = h.db.WithContext(c.Request.Context()).Model(&models.Track{}).
			Select("game_id, COUNT(*) AS n").
			Where("game_id IN ?", ids).
			Group("game_id").
			Scan(&counts).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count tracks"})
			return
		}
	}
	trackCounts := make(map[uint]int64, len(counts))
	for _, row := range counts {
		trackCounts[row.GameID] = row.N
	}

	response := make([]GameResponse, 0, len(result.Data))
	for _, g := range result.Data {
		resp := GameResponse{ID: g.ID, Name: g.Name, TrackCount: trackCounts[g.ID]}
		if g.Franchise != nil {
			resp.Franchise = g.Franchise.Name
		}
		response = append(response, resp)
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(response, result.Meta.TotalItems, page, limit))
}

// endregion

func pageParams(c *gin.Context) (page, limit int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100 // Max limit
	}
	return page, limit
}

// likePattern builds a case-insensitive substring pattern, or "" for no filter.
func likePattern(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return ""
	}
	return "%" + q + "%"
}
