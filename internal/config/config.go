package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ad/personsearch/internal/logger"
	"github.com/ad/personsearch/internal/manticore"
	"github.com/ad/personsearch/internal/paging"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `validate:"oneof=dev staging prod"`
	Server      ServerConfig
	Log         logger.Config `validate:"-"`
	Paging      paging.Config
	Manticore   manticore.Config `validate:"-"`

	// SeedDir holds the JSON/YAML documents used by reload and load
	SeedDir      string
	ReadyTimeout time.Duration `validate:"gte=0"`

	// EnvFileLoaded reports whether a .env file was read
	EnvFileLoaded bool
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr            string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// Load reads configuration from the environment. Outside production a .env
// file in the working directory is loaded first; variables already set win.
func Load() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	cfg := &Config{Environment: env}

	if env != "prod" {
		err := godotenv.Load()
		switch {
		case err == nil:
			cfg.EnvFileLoaded = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg.Server = ServerConfig{
		Addr:            getEnv("PERSONSEARCH_ADDR", ":8080"),
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
	cfg.Log = logger.Config{
		Env:    env,
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	}
	cfg.Paging = paging.DefaultConfig()
	cfg.SeedDir = getEnv("PERSONSEARCH_SEED_DIR", "data")
	cfg.ReadyTimeout = 60 * time.Second

	var err error
	if cfg.Server.ReadTimeout, err = getDuration("PERSONSEARCH_READ_TIMEOUT", cfg.Server.ReadTimeout); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDuration("PERSONSEARCH_WRITE_TIMEOUT", cfg.Server.WriteTimeout); err != nil {
		return nil, err
	}
	if cfg.Server.ShutdownTimeout, err = getDuration("PERSONSEARCH_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout); err != nil {
		return nil, err
	}
	if cfg.ReadyTimeout, err = getDuration("PERSONSEARCH_READY_TIMEOUT", cfg.ReadyTimeout); err != nil {
		return nil, err
	}
	if cfg.Paging.PageSize, err = getInt("PERSONSEARCH_PAGE_SIZE", cfg.Paging.PageSize); err != nil {
		return nil, err
	}
	if cfg.Paging.MaxPageRange, err = getInt("PERSONSEARCH_MAX_PAGE_RANGE", cfg.Paging.MaxPageRange); err != nil {
		return nil, err
	}
	if cfg.Paging.PageRangeDelta, err = getInt("PERSONSEARCH_PAGE_RANGE_DELTA", cfg.Paging.PageRangeDelta); err != nil {
		return nil, err
	}

	mc, err := manticore.LoadConfigFromEnvironment()
	if err != nil {
		return nil, err
	}
	cfg.Manticore = *mc

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
