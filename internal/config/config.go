// Package config loads application configuration from environment variables.
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

const envPrefix = "RELEASEBOT_"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	TelegramToken   string
	GitHubToken     string
	GitHubAPIURL    string
	DBPath          string
	PollInterval    time.Duration
	PollSchedule    string
	PollConcurrency int
	NotifyRate      int
	NotesMaxLen     int
	ListenAddr      string
	LogLevel        string
	LogFormat       string
}

// Load reads configuration from environment variables and returns a validated Config.
// When RELEASEBOT_ENV_FILE names a dotenv file it is loaded first; variables
// already present in the environment win over the file.
//
// RELEASEBOT_TELEGRAM_TOKEN is required. Optional: RELEASEBOT_GITHUB_TOKEN,
// RELEASEBOT_GITHUB_API_URL, RELEASEBOT_POLL_SCHEDULE. Optional with defaults:
// RELEASEBOT_DB_PATH (releasebot.db), RELEASEBOT_POLL_INTERVAL (5m),
// RELEASEBOT_POLL_CONCURRENCY (4), RELEASEBOT_NOTIFY_RATE (20),
// RELEASEBOT_NOTES_MAX_LEN (400), RELEASEBOT_LISTEN_ADDR (127.0.0.1:8080),
// RELEASEBOT_LOG_LEVEL (info), RELEASEBOT_LOG_FORMAT (console).
func Load() (*Config, error) {
	if path := os.Getenv(envPrefix + "ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", path, err)
		}
	}

	cfg := &Config{
		TelegramToken:   strings.TrimSpace(os.Getenv(envPrefix + "TELEGRAM_TOKEN")),
		GitHubToken:     strings.TrimSpace(os.Getenv(envPrefix + "GITHUB_TOKEN")),
		GitHubAPIURL:    os.Getenv(envPrefix + "GITHUB_API_URL"),
		DBPath:          stringVar("DB_PATH", "releasebot.db"),
		PollSchedule:    strings.TrimSpace(os.Getenv(envPrefix + "POLL_SCHEDULE")),
		ListenAddr:      stringVar("LISTEN_ADDR", "127.0.0.1:8080"),
		LogLevel:        strings.ToLower(stringVar("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(stringVar("LOG_FORMAT", "console")),
		PollInterval:    5 * time.Minute,
		PollConcurrency: 4,
		NotifyRate:      20,
		NotesMaxLen:     400,
	}

	if cfg.TelegramToken == "" {
		return nil, errors.New(envPrefix + "TELEGRAM_TOKEN is required")
	}

	if v, ok := os.LookupEnv(envPrefix + "POLL_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%sPOLL_INTERVAL has invalid duration %q: %w", envPrefix, v, err)
		}
		if parsed < time.Second {
			return nil, fmt.Errorf("%sPOLL_INTERVAL must be at least 1s, got %s", envPrefix, parsed)
		}
		cfg.PollInterval = parsed
	}

	var err error
	if cfg.PollConcurrency, err = positiveInt("POLL_CONCURRENCY", cfg.PollConcurrency); err != nil {
		return nil, err
	}
	if cfg.NotifyRate, err = positiveInt("NOTIFY_RATE", cfg.NotifyRate); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv(envPrefix + "NOTES_MAX_LEN"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%sNOTES_MAX_LEN must be a non-negative integer, got %q", envPrefix, v)
		}
		cfg.NotesMaxLen = n
	}

	switch cfg.LogFormat {
	case "console", "json":
	default:
		return nil, fmt.Errorf("%sLOG_FORMAT must be console or json, got %q", envPrefix, cfg.LogFormat)
	}

	return cfg, nil
}

func stringVar(name, def string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		return v
	}
	return def
}

func positiveInt(name string, def int) (int, error) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s%s must be a positive integer, got %q", envPrefix, name, v)
	}
	return n, nil
}
