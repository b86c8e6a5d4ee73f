package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// History backends.
const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds environment-driven settings for the REST API.
type Config struct {
	Port int

	// StationSource is a file path, an http(s) URL or "postgres".
	StationSource  string
	HistoryBackend string
	HistorySource  string
	SQLitePath     string
	DatabaseURL    string

	BoundaryDivisionsPath   string
	BoundaryDistrictsPath   string
	PopulationDivisionsPath string
	PopulationDistrictsPath string

	SessionIdleTTL time.Duration
	FetchTimeout   time.Duration
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:           8080,
		StationSource:  "./aq_stations.json",
		HistoryBackend: BackendJSON,
		HistorySource:  "./aq_history.json",
		SQLitePath:     "./aq_history.db",
		SessionIdleTTL: 30 * time.Minute,
		FetchTimeout:   15 * time.Second,
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if v := strings.TrimSpace(os.Getenv("STATION_SOURCE")); v != "" {
		cfg.StationSource = v
	}

	if v := strings.TrimSpace(os.Getenv("HISTORY_BACKEND")); v != "" {
		switch strings.ToLower(v) {
		case BackendJSON, BackendPostgres, BackendSQLite:
			cfg.HistoryBackend = strings.ToLower(v)
		default:
			return cfg, fmt.Errorf("invalid HISTORY_BACKEND: %s", v)
		}
	}

	if v := strings.TrimSpace(os.Getenv("HISTORY_SOURCE")); v != "" {
		cfg.HistorySource = v
	}
	if v := strings.TrimSpace(os.Getenv("SQLITE_PATH")); v != "" {
		cfg.SQLitePath = v
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.UsesPostgres() && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required when a postgres backend is selected")
	}

	cfg.BoundaryDivisionsPath = os.Getenv("BOUNDARY_DIVISIONS_PATH")
	cfg.BoundaryDistrictsPath = os.Getenv("BOUNDARY_DISTRICTS_PATH")
	cfg.PopulationDivisionsPath = os.Getenv("POPULATION_DIVISIONS_PATH")
	cfg.PopulationDistrictsPath = os.Getenv("POPULATION_DISTRICTS_PATH")

	if v := os.Getenv("SESSION_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid SESSION_IDLE_TTL: %s", v)
		}
		cfg.SessionIdleTTL = d
	}

	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid FETCH_TIMEOUT: %s", v)
		}
		cfg.FetchTimeout = d
	}

	return cfg, nil
}

// StationsFromPostgres reports whether the station feed is read from the database.
func (c Config) StationsFromPostgres() bool {
	return strings.EqualFold(c.StationSource, BackendPostgres)
}

// UsesPostgres reports whether any backend needs DATABASE_URL.
func (c Config) UsesPostgres() bool {
	return c.StationsFromPostgres() || c.HistoryBackend == BackendPostgres
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
