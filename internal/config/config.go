package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Port            string        `mapstructure:"PORT"`
	DatabaseDriver  string        `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	RoomStore       string        `mapstructure:"ROOM_STORE"`
	RoomIdleTimeout time.Duration `mapstructure:"ROOM_IDLE_TIMEOUT"`
	CatalogSeed     string        `mapstructure:"CATALOG_SEED"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	CORSOrigins     string        `mapstructure:"CORS_ORIGINS"`
}

var AppConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "file:songquiz.db")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("ROOM_STORE", "database")
	v.SetDefault("ROOM_IDLE_TIMEOUT", "30m")
	v.SetDefault("CATALOG_SEED", "data/catalog.json")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "*")
}

// Load reads the .env file in dir, if any, and the environment.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Msg(".env file not found, loading from environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.DatabaseDriver = strings.ToLower(cfg.DatabaseDriver)
	cfg.RoomStore = strings.ToLower(cfg.RoomStore)
	return &cfg, nil
}

// LoadConfig loads the configuration from a .env file and environment variables.
func LoadConfig() {
	cfg, err := Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to decode config")
	}
	if cfg.JWTSecret == "change-me" {
		log.Warn().Msg("JWT_SECRET is not set, using an insecure default")
	}
	AppConfig = cfg
}

// Origins splits CORS_ORIGINS into a list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
