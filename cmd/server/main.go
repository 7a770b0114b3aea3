package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"songquiz/backend/internal/auth"
	"songquiz/backend/internal/catalog"
	"songquiz/backend/internal/config"
	"songquiz/backend/internal/database"
	"songquiz/backend/internal/handler"
	"songquiz/backend/internal/hub"
	"songquiz/backend/internal/logger"
	"songquiz/backend/internal/room"
	"songquiz/backend/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	// Swagger imports
	_ "songquiz/backend/docs" // This is important for swag to find the generated docs

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func init() {
	config.LoadConfig()
	logger.Setup(os.Stdout, config.AppConfig.LogLevel)
}

// @title           Songquiz API
// @version         1.0
// @description     Rooms and rounds of the music guessing game.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.AppConfig
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the database
	database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)

	if cfg.CatalogSeed != "" {
		seedCatalog(ctx, cfg.CatalogSeed)
	}
	tracks, err := catalog.Load(ctx, database.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog")
	}
	log.Info().Int("tracks", len(tracks)).Msg("Catalog loaded")

	var roomStore store.RoomStore
	switch cfg.RoomStore {
	case "memory":
		roomStore = store.NewMemory()
	default:
		roomStore = store.NewGorm(database.DB)
	}

	changes := hub.NewHub()
	rooms := room.New(room.Options{
		Store:       roomStore,
		Catalog:     tracks,
		Hub:         changes,
		IdleTimeout: cfg.RoomIdleTimeout,
	})

	router := gin.Default()
	router.Use(auth.RequestID())
	router.Use(cors.New(corsConfig(cfg.Origins())))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.OptionalAuthMiddleware(cfg.JWTSecret))
	{
		handler.NewRoomHandler(rooms, changes, cfg.JWTSecret).Register(apiV1)
		handler.NewCatalogHandler(database.DB).Register(apiV1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server is running")
		log.Info().Msgf("Swagger UI is available at http://localhost:%s/swagger/index.html", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), handler.MaxPollWait+5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, rooms.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with an error")
	}
}

func seedCatalog(ctx context.Context, path string) {
	tracks, err := catalog.ReadSeed(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Catalog seed not loaded")
		return
	}
	if _, err := catalog.Seed(ctx, database.DB, tracks); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to seed catalog")
	}
}

func corsConfig(origins []string) cors.Config {
	conf := cors.DefaultConfig()
	conf.AllowHeaders = append(conf.AllowHeaders, "Authorization", auth.RequestIDHeader)
	conf.ExposeHeaders = []string{auth.RequestIDHeader}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	return conf
}
