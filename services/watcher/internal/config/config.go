package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultOutputPath     = "aq_stations.json"
	defaultRequestTimeout = 10 * time.Second
	defaultMaxAttempts    = 5
)

// Modes select which networks a run collects.
const (
	ModePurpleAir = "purpleair"
	ModeIQAir     = "iqair"
	ModeWAQI      = "waqi"
	ModeAll       = "all"
)

// Config holds runtime configuration for the watcher service.
type Config struct {
	Mode string

	PurpleAirAPIKey string
	IQAirAPIKey     string
	WAQIToken       string
	WAQIStations    []int

	OutputPath  string
	DatabaseURL string
	SQLitePath  string

	RequestTimeout time.Duration
	MaxAttempts    int
	DryRun         bool
}

// Load reads configuration from environment variables (optionally .env).
// mode is the first command-line argument; empty or unrecognised means all
// networks.
func Load(mode string) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.Mode = strings.ToLower(strings.TrimSpace(mode))
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeAll
	case ModePurpleAir, ModeIQAir, ModeWAQI, ModeAll:
	default:
		log.Printf("unknown mode %q, collecting from all networks", mode)
		cfg.Mode = ModeAll
	}

	cfg.PurpleAirAPIKey = strings.TrimSpace(os.Getenv("PURPLEAIR_API_KEY"))
	cfg.IQAirAPIKey = strings.TrimSpace(os.Getenv("IQAIR_API_KEY"))
	cfg.WAQIToken = strings.TrimSpace(os.Getenv("WAQI_TOKEN"))

	if cfg.Wants(ModePurpleAir) && cfg.Mode != ModeAll && cfg.PurpleAirAPIKey == "" {
		return cfg, errors.New("PURPLEAIR_API_KEY is required")
	}
	if cfg.Wants(ModeIQAir) && cfg.Mode != ModeAll && cfg.IQAirAPIKey == "" {
		return cfg, errors.New("IQAIR_API_KEY is required")
	}
	if cfg.Wants(ModeWAQI) && cfg.Mode != ModeAll && cfg.WAQIToken == "" {
		return cfg, errors.New("WAQI_TOKEN is required")
	}

	if v := strings.TrimSpace(os.Getenv("WAQI_STATIONS")); v != "" {
		for _, part := range strings.Split(v, ",") {
			idx, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return cfg, fmt.Errorf("invalid WAQI_STATIONS entry %q: %w", part, err)
			}
			cfg.WAQIStations = append(cfg.WAQIStations, idx)
		}
	}

	cfg.OutputPath = strings.TrimSpace(os.Getenv("OUTPUT_PATH"))
	if cfg.OutputPath == "" {
		cfg.OutputPath = defaultOutputPath
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))

	cfg.RequestTimeout = defaultRequestTimeout
	if v := strings.TrimSpace(os.Getenv("WATCHER_REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid WATCHER_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	cfg.MaxAttempts = defaultMaxAttempts
	if v := strings.TrimSpace(os.Getenv("WATCHER_MAX_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid WATCHER_MAX_ATTEMPTS: %s", v)
		}
		cfg.MaxAttempts = n
	}

	dryRun := strings.TrimSpace(os.Getenv("DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	return cfg, nil
}

// Wants reports whether the run collects network.
func (c Config) Wants(network string) bool {
	return c.Mode == ModeAll || c.Mode == network
}
