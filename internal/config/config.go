package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type SimConfig struct {
	HourEvery     time.Duration
	StartSpeed    float64
	StartingCash  int64
	WinTarget     int64
	InterestRate  float64
	EventMinHours float64
	EventMaxHours float64
	XPBase        int64
	XPCurve       float64
	Perk          string
	Seed          int64
	ModalTimeout  time.Duration
	CatalogDir    string
	LogLevel      string
}

type APIConfig struct {
	Sim              SimConfig
	Addr             string
	DatabaseURL      string
	SQLitePath       string
	DiscordToken     string
	DiscordChannelID string
	PrintQR          bool
	PublicURL        string
}

type WorkerConfig struct {
	Sim         SimConfig
	DatabaseURL string
	SQLitePath  string
	MaxHours    int64
	Speed       float64
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadSimFromEnv() (SimConfig, error) {
	cfg := SimConfig{
		HourEvery:     envDurationDefault("TYCOON_HOUR_EVERY", time.Second),
		StartSpeed:    envFloatDefault("TYCOON_START_SPEED", 1),
		StartingCash:  envIntDefault("TYCOON_STARTING_CASH", 10_000),
		WinTarget:     envIntDefault("TYCOON_WIN_TARGET", 1_000_000),
		InterestRate:  envFloatDefault("TYCOON_INTEREST_RATE", 0.05),
		EventMinHours: envFloatDefault("TYCOON_EVENT_MIN_HOURS", 6),
		EventMaxHours: envFloatDefault("TYCOON_EVENT_MAX_HOURS", 48),
		XPBase:        envIntDefault("TYCOON_XP_BASE", 100),
		XPCurve:       envFloatDefault("TYCOON_XP_CURVE", 1.2),
		Perk:          strings.ToLower(envDefault("TYCOON_PERK", "")),
		Seed:          envIntDefault("TYCOON_SEED", 0),
		ModalTimeout:  envDurationDefault("TYCOON_MODAL_TIMEOUT", 0),
		CatalogDir:    envDefault("TYCOON_CATALOG_DIR", ""),
		LogLevel:      envDefault("TYCOON_LOG_LEVEL", "info"),
	}
	return cfg, cfg.Validate()
}

func (c SimConfig) Validate() error {
	if c.WinTarget <= 0 {
		return fmt.Errorf("TYCOON_WIN_TARGET must be positive, got %d", c.WinTarget)
	}
	if c.EventMinHours <= 0 {
		return fmt.Errorf("TYCOON_EVENT_MIN_HOURS must be positive, got %v", c.EventMinHours)
	}
	if c.EventMinHours > c.EventMaxHours {
		return fmt.Errorf("TYCOON_EVENT_MIN_HOURS (%v) exceeds TYCOON_EVENT_MAX_HOURS (%v)", c.EventMinHours, c.EventMaxHours)
	}
	if c.StartSpeed < 0 {
		return fmt.Errorf("TYCOON_START_SPEED must not be negative, got %v", c.StartSpeed)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog levels, defaulting to info.
func (c SimConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func LoadAPIFromEnv() (APIConfig, error) {
	sim, err := LoadSimFromEnv()
	if err != nil {
		return APIConfig{Sim: sim}, err
	}

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TYCOON_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Sim:              sim,
		Addr:             addr,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:       envDefault("TYCOON_SQLITE_PATH", ""),
		DiscordToken:     strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		DiscordChannelID: strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		PrintQR:          envBoolDefault("TYCOON_PRINT_QR", false),
		PublicURL:        strings.TrimRight(envDefault("TYCOON_PUBLIC_URL", ""), "/"),
	}
	if cfg.DiscordToken != "" && cfg.DiscordChannelID == "" {
		return cfg, fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_BOT_TOKEN is set")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	sim, err := LoadSimFromEnv()
	if err != nil {
		return WorkerConfig{Sim: sim}, err
	}
	cfg := WorkerConfig{
		Sim:         sim,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  envDefault("TYCOON_SQLITE_PATH", "tycoon-journal.db"),
		MaxHours:    envIntDefault("TYCOON_WORKER_MAX_HOURS", 0),
		Speed:       envFloatDefault("TYCOON_WORKER_SPEED", 60),
	}
	if cfg.MaxHours < 0 {
		return cfg, fmt.Errorf("TYCOON_WORKER_MAX_HOURS must not be negative, got %d", cfg.MaxHours)
	}
	if cfg.Speed <= 0 {
		return cfg, fmt.Errorf("TYCOON_WORKER_SPEED must be positive, got %v", cfg.Speed)
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TYCOON_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
