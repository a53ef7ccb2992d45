// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/search"
)

// Environment variable names. The DATABASE_* names match the deployment
// the corpus was first served from.
const (
	EnvDBPath             = "ETOILE_DB_PATH"
	EnvStrategy           = "ETOILE_STRATEGY"
	EnvEmbeddingHost      = "ETOILE_EMBEDDING_HOST"
	EnvEmbeddingModel     = "ETOILE_EMBEDDING_MODEL"
	EnvEmbeddingDimension = "ETOILE_EMBEDDING_DIMENSION"
	EnvDatabaseUsername   = "DATABASE_USERNAME"
	EnvDatabasePassword   = "DATABASE_PASSWORD"
	EnvDatabaseHost       = "DATABASE_HOST"
	EnvDatabasePort       = "DATABASE_PORT"
	EnvDatabaseName       = "DATABASE_DATABASE"
	EnvQdrantAddr         = "QDRANT_ADDR"
	EnvQdrantCollection   = "QDRANT_COLLECTION"
)

// ErrInvalidConfig is returned when an environment value cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all runtime settings.
type Config struct {
	// DBPath is the directory of the embedded corpus store.
	DBPath   string
	Strategy search.Strategy

	EmbeddingHost      string
	EmbeddingModel     string
	EmbeddingDimension int

	DatabaseUsername string
	DatabasePassword string
	DatabaseHost     string
	DatabasePort     int
	DatabaseName     string

	QdrantAddr       string
	QdrantCollection string
}

// Load reads .env files into the process environment, without overriding
// variables already set, and then builds a Config from it. With no
// arguments it reads ./.env if present. Explicitly named files must exist.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment.
func FromEnv() (*Config, error) {
	defaults := ai.DefaultConfig()

	dim, err := getEnvInt(EnvEmbeddingDimension, defaults.Dimension)
	if err != nil {
		return nil, err
	}
	port, err := getEnvInt(EnvDatabasePort, 5432)
	if err != nil {
		return nil, err
	}
	strategy, err := search.ParseStrategy(os.Getenv(EnvStrategy))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvStrategy, err)
	}

	cfg := &Config{
		DBPath:             getEnv(EnvDBPath, "etoile.db"),
		Strategy:           strategy,
		EmbeddingHost:      getEnv(EnvEmbeddingHost, defaults.EmbeddingHost),
		EmbeddingModel:     getEnv(EnvEmbeddingModel, defaults.EmbeddingModel),
		EmbeddingDimension: dim,
		DatabaseUsername:   os.Getenv(EnvDatabaseUsername),
		DatabasePassword:   os.Getenv(EnvDatabasePassword),
		DatabaseHost:       os.Getenv(EnvDatabaseHost),
		DatabasePort:       port,
		DatabaseName:       os.Getenv(EnvDatabaseName),
		QdrantAddr:         getEnv(EnvQdrantAddr, "localhost:6334"),
		QdrantCollection:   getEnv(EnvQdrantCollection, "restaurants"),
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, EnvEmbeddingDimension, c.EmbeddingDimension)
	}
	if c.DatabasePort <= 0 || c.DatabasePort > 65535 {
		return fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfig, EnvDatabasePort, c.DatabasePort)
	}
	return nil
}

// AIConfig returns the embedding provider settings.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.EmbeddingHost),
		ai.WithEmbeddingModel(c.EmbeddingModel),
		ai.WithDimension(c.EmbeddingDimension),
	)
}

// HasPostgres reports whether a PostgreSQL host is configured.
func (c *Config) HasPostgres() bool {
	return c.DatabaseHost != ""
}

// PostgresDSN returns a pgx connection URL, or "" when no host is set.
func (c *Config) PostgresDSN() string {
	if !c.HasPostgres() {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DatabaseHost, strconv.Itoa(c.DatabasePort)),
		Path:   "/" + c.DatabaseName,
	}
	switch {
	case c.DatabaseUsername != "" && c.DatabasePassword != "":
		u.User = url.UserPassword(c.DatabaseUsername, c.DatabasePassword)
	case c.DatabaseUsername != "":
		u.User = url.User(c.DatabaseUsername)
	}
	return u.String()
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
	}
	return i, nil
}
