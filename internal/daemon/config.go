// Package daemon manages the fanquest service lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/stagelight/fanquest/internal/app/engagement"
	"github.com/stagelight/fanquest/internal/app/gacha"
	"github.com/stagelight/fanquest/internal/domain"
)

// Config holds all service configuration. Values come from config.toml,
// then .env files, then FANQUEST_* environment variables.
type Config struct {
	API         APIConfig         `toml:"api"`
	Auth        AuthConfig        `toml:"auth"`
	Store       StoreConfig       `toml:"store"`
	Progression ProgressionConfig `toml:"progression"`
	Caps        CapsConfig        `toml:"caps"`
	Gacha       gacha.Config      `toml:"gacha"`
	Streaks     StreaksConfig     `toml:"streaks"`
	Streaming   StreamingConfig   `toml:"streaming"`
	Leaderboard LeaderboardConfig `toml:"leaderboard"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Logging     LoggingConfig     `toml:"logging"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string        `toml:"host" env:"FANQUEST_API_HOST"`
	Port           int           `toml:"port" env:"FANQUEST_API_PORT"`
	CORSOrigin     string        `toml:"cors_origin" env:"FANQUEST_CORS_ORIGIN"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	RateLimit      float64       `toml:"rate_limit" env:"FANQUEST_RATE_LIMIT"`
	RateBurst      int           `toml:"rate_burst"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	JWTSecret  string        `toml:"jwt_secret" env:"FANQUEST_JWT_SECRET"`
	Issuer     string        `toml:"issuer" env:"FANQUEST_JWT_ISSUER"`
	Audience   string        `toml:"audience" env:"FANQUEST_JWT_AUDIENCE"`
	Leeway     time.Duration `toml:"leeway"`
	UseNodeKey bool          `toml:"use_node_key"` // accept EdDSA tokens signed with keys/token.key
}

// StoreConfig controls where state lives.
type StoreConfig struct {
	Dir string `toml:"dir" env:"FANQUEST_STORE_DIR"`
}

// ProgressionConfig holds the leveling curve and the period time zone.
type ProgressionConfig struct {
	Timezone    string  `toml:"timezone" env:"FANQUEST_TIMEZONE"`
	CurveBase   float64 `toml:"curve_base"`
	CurveGrowth float64 `toml:"curve_growth"`
	MaxLevel    int     `toml:"max_level"`
}

// CapsConfig bounds daily issuance per player. Zero is unlimited.
type CapsConfig struct {
	XPEvents     int   `toml:"xp_events"`
	XPAmount     int64 `toml:"xp_amount"`
	Collectibles int   `toml:"collectibles"`
}

// StreaksConfig lists the streak milestones per period.
type StreaksConfig struct {
	Daily  []engagement.Milestone `toml:"daily"`
	Weekly []engagement.Milestone `toml:"weekly"`
}

// StreamingConfig controls the listening-history provider. Verification
// is disabled when APIKey is empty.
type StreamingConfig struct {
	BaseURL   string        `toml:"base_url" env:"FANQUEST_STREAMING_URL"`
	APIKey    string        `toml:"api_key" env:"FANQUEST_STREAMING_API_KEY"`
	RateLimit float64       `toml:"rate_limit"`
	Burst     int           `toml:"burst"`
	Timeout   time.Duration `toml:"timeout"`
	PageSize  int           `toml:"page_size"`
	MaxPages  int           `toml:"max_pages"`
}

// LeaderboardConfig controls paging.
type LeaderboardConfig struct {
	PageSize int `toml:"page_size"`
	MaxPage  int `toml:"max_page"`
}

// CatalogConfig points at the quest/item/badge file. Empty uses the
// built-in catalog.
type CatalogConfig struct {
	Path string `toml:"path" env:"FANQUEST_CATALOG"`
}

// SchedulerConfig sets background job intervals.
type SchedulerConfig struct {
	ClosePeriodsEvery time.Duration `toml:"close_periods_every"`
	HealthEvery       time.Duration `toml:"health_every"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level" env:"FANQUEST_LOG_LEVEL"`
	Format string `toml:"format" env:"FANQUEST_LOG_FORMAT"` // text | json
	File   string `toml:"file"`
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus" env:"FANQUEST_PROMETHEUS"`
}

// DefaultConfig returns a configuration that runs locally with the
// built-in catalog and no streaming provider.
func DefaultConfig() Config {
	curve := engagement.DefaultCurve()
	milestones := engagement.DefaultMilestones()
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			CORSOrigin:     "*",
			RequestTimeout: 30 * time.Second,
			RateLimit:      10,
			RateBurst:      20,
		},
		Auth: AuthConfig{
			Issuer:     "fanquest",
			Leeway:     30 * time.Second,
			UseNodeKey: true,
		},
		Store: StoreConfig{
			Dir: fanquestHome(),
		},
		Progression: ProgressionConfig{
			Timezone:    "UTC",
			CurveBase:   curve.Base,
			CurveGrowth: curve.Growth,
			MaxLevel:    curve.MaxLevel,
		},
		Caps: CapsConfig{
			XPEvents:     50,
			XPAmount:     5_000,
			Collectibles: 10,
		},
		Gacha: gacha.DefaultConfig(),
		Streaks: StreaksConfig{
			Daily:  milestones[domain.PeriodDaily],
			Weekly: milestones[domain.PeriodWeekly],
		},
		Streaming: StreamingConfig{
			RateLimit: 5,
			Burst:     5,
			Timeout:   5 * time.Second,
			PageSize:  200,
			MaxPages:  5,
		},
		Leaderboard: LeaderboardConfig{
			PageSize: 25,
			MaxPage:  100,
		},
		Scheduler: SchedulerConfig{
			ClosePeriodsEvery: 5 * time.Minute,
			HealthEvery:       30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads ~/.fanquest/config.toml, falling back to defaults, and
// applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(filepath.Join(fanquestHome(), "config.toml"))
}

// LoadConfigFrom reads the config at path. A missing file is not an error.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	return cfg, cfg.Validate()
}

// loadDotEnv loads each .env file that exists. Variables already set in
// the environment win.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside startup.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if _, err := time.LoadLocation(c.Progression.Timezone); err != nil {
		return fmt.Errorf("progression.timezone: %w", err)
	}
	if c.Caps.XPEvents < 0 || c.Caps.XPAmount < 0 || c.Caps.Collectibles < 0 {
		return errors.New("caps must not be negative")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q: want text or json", c.Logging.Format)
	}
	for period, ms := range map[string][]engagement.Milestone{"daily": c.Streaks.Daily, "weekly": c.Streaks.Weekly} {
		for _, m := range ms {
			if m.Count <= 0 {
				return fmt.Errorf("streaks.%s: milestone count must be positive, got %d", period, m.Count)
			}
			if m.BadgeCode == "" {
				return fmt.Errorf("streaks.%s: milestone %d has no badge", period, m.Count)
			}
			if m.BonusFloor != "" && !m.BonusFloor.Valid() {
				return fmt.Errorf("streaks.%s: milestone %d: unknown bonus_floor %q", period, m.Count, m.BonusFloor)
			}
		}
	}
	return c.Gacha.Validate()
}

// EngineConfig converts the progression sections into engine settings.
func (c Config) EngineConfig() (engagement.Config, error) {
	loc, err := time.LoadLocation(c.Progression.Timezone)
	if err != nil {
		return engagement.Config{}, err
	}
	cfg := engagement.DefaultConfig()
	cfg.Location = loc
	cfg.Curve = engagement.Curve{
		Base:     c.Progression.CurveBase,
		Growth:   c.Progression.CurveGrowth,
		MaxLevel: c.Progression.MaxLevel,
	}
	cfg.Caps = engagement.DailyCaps{
		XPEvents:     c.Caps.XPEvents,
		XPAmount:     c.Caps.XPAmount,
		Collectibles: c.Caps.Collectibles,
	}
	cfg.Milestones = map[domain.Period][]engagement.Milestone{
		domain.PeriodDaily:  c.Streaks.Daily,
		domain.PeriodWeekly: c.Streaks.Weekly,
	}
	if c.Leaderboard.PageSize > 0 {
		cfg.LeaderboardPageSize = c.Leaderboard.PageSize
	}
	if c.Leaderboard.MaxPage > 0 {
		cfg.LeaderboardMaxPage = c.Leaderboard.MaxPage
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.fanquest/config.toml.
func SaveConfig(cfg Config) error {
	return SaveConfigTo(filepath.Join(fanquestHome(), "config.toml"), cfg)
}

// SaveConfigTo writes the config to path.
func SaveConfigTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// fanquestHome returns the data directory.
func fanquestHome() string {
	if dir := os.Getenv("FANQUEST_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fanquest")
}

// Home is exported for use by other packages.
func Home() string {
	return fanquestHome()
}
