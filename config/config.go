package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Accounts file location (env only)
	AccountsFile string `yaml:"-"`

	// Watched accounts, read from AccountsFile
	Accounts []AccountConfig `yaml:"accounts"`

	// Roblox API
	Roblox RobloxConfig `yaml:"-"`

	// Rolimons valuations
	Rolimons RolimonsConfig `yaml:"-"`

	// Notification image rendering
	Render RenderConfig `yaml:"-"`

	// Discord
	Discord DiscordConfig `yaml:"-"`

	// Telegram
	Telegram TelegramConfig `yaml:"-"`

	// Logging
	Logging LoggingConfig `yaml:"-"`

	// Release update checks
	UpdateChecker UpdateCheckerConfig `yaml:"-"`

	// GitHub API
	GitHub GitHubConfig `yaml:"-"`

	// Health server
	HealthServer HealthServerConfig `yaml:"-"`
}

// AccountConfig describes one watched account.
type AccountConfig struct {
	Name     string          `yaml:"name"`
	Cookie   string          `yaml:"cookie"`
	Watchers []WatcherConfig `yaml:"watchers"`
}

// WatcherConfig describes one trade direction watched on an account.
type WatcherConfig struct {
	Direction              string        `yaml:"direction"`
	WebhookURL             string        `yaml:"webhook_url"`
	PollInterval           time.Duration `yaml:"poll_interval"`
	PageSize               int           `yaml:"page_size"`
	Theme                  string        `yaml:"theme"`
	IncludeUnvaluedInTotal *bool         `yaml:"include_unvalued_in_total"`
	DoubleCheck            bool          `yaml:"double_check"`
	Testing                bool          `yaml:"testing"` // Send the newest history trade on start
	Content                string        `yaml:"content"` // Caption template
}

// IncludeUnvalued reports whether unvalued items count toward value totals.
// Defaults to true when unset.
func (w WatcherConfig) IncludeUnvalued() bool {
	return w.IncludeUnvaluedInTotal == nil || *w.IncludeUnvaluedInTotal
}

// RobloxConfig holds Roblox API configuration.
type RobloxConfig struct {
	UsersURL          string
	TradesURL         string
	AuthURL           string
	ThumbnailsURL     string
	RequestsPerSecond float64
	MaxAttempts       int
	RetryDelay        time.Duration
	SeedPageSize      int
	DoubleCheckDelay  time.Duration
}

// RolimonsConfig holds valuation source configuration.
type RolimonsConfig struct {
	ItemDetailsURL string
	// RefreshInterval > 0 refreshes on a timer; 0 refreshes once per notification.
	RefreshInterval time.Duration
}

// RenderConfig holds theme and thumbnail configuration.
type RenderConfig struct {
	ThemesDir     string
	DefaultTheme  string
	ThumbnailSize string
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	MaxContentLength int
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level      string
	Dir        string // Empty disables the rotating log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// UpdateCheckerConfig holds release check configuration.
type UpdateCheckerConfig struct {
	Enabled    bool
	Repo       string // owner/name
	Schedule   string // cron spec, e.g. "@every 60m"
	WebhookURL string
}

// GitHubConfig holds GitHub API configuration.
type GitHubConfig struct {
	APIURL string
	Token  string
}

// HealthServerConfig holds health server configuration.
type HealthServerConfig struct {
	Enabled bool
	Port    int
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		AccountsFile: "accounts.yaml",
		Roblox: RobloxConfig{
			UsersURL:          "https://users.roblox.com",
			TradesURL:         "https://trades.roblox.com",
			AuthURL:           "https://auth.roblox.com",
			ThumbnailsURL:     "https://thumbnails.roblox.com",
			RequestsPerSecond: 2,
			MaxAttempts:       3,
			RetryDelay:        5 * time.Second,
			SeedPageSize:      25,
			DoubleCheckDelay:  10 * time.Second,
		},
		Rolimons: RolimonsConfig{
			ItemDetailsURL:  "https://www.rolimons.com/itemapi/itemdetails",
			RefreshInterval: 0,
		},
		Render: RenderConfig{
			ThemesDir:     "themes",
			DefaultTheme:  "default",
			ThumbnailSize: "700x700",
		},
		Discord: DiscordConfig{
			MaxContentLength: 2000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		UpdateChecker: UpdateCheckerConfig{
			Enabled:  true,
			Repo:     "horizon-bots/horizon",
			Schedule: "@every 60m",
		},
		GitHub: GitHubConfig{
			APIURL: "https://api.github.com",
		},
		HealthServer: HealthServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load reads a .env file if present, then environment variables, then the
// accounts file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	d := Defaults()
	cfg := &Config{
		AccountsFile: envString("HORIZON_ACCOUNTS_FILE", d.AccountsFile),

		Roblox: RobloxConfig{
			UsersURL:          envString("ROBLOX_USERS_URL", d.Roblox.UsersURL),
			TradesURL:         envString("ROBLOX_TRADES_URL", d.Roblox.TradesURL),
			AuthURL:           envString("ROBLOX_AUTH_URL", d.Roblox.AuthURL),
			ThumbnailsURL:     envString("ROBLOX_THUMBNAILS_URL", d.Roblox.ThumbnailsURL),
			RequestsPerSecond: envFloat("ROBLOX_REQUESTS_PER_SECOND", d.Roblox.RequestsPerSecond),
			MaxAttempts:       envInt("ROBLOX_MAX_ATTEMPTS", d.Roblox.MaxAttempts),
			RetryDelay:        envDuration("ROBLOX_RETRY_DELAY", d.Roblox.RetryDelay),
			SeedPageSize:      envInt("ROBLOX_SEED_PAGE_SIZE", d.Roblox.SeedPageSize),
			DoubleCheckDelay:  envDuration("DOUBLE_CHECK_DELAY", d.Roblox.DoubleCheckDelay),
		},

		Rolimons: RolimonsConfig{
			ItemDetailsURL:  envString("ROLIMONS_URL", d.Rolimons.ItemDetailsURL),
			RefreshInterval: envDuration("ROLIMONS_REFRESH_INTERVAL", d.Rolimons.RefreshInterval),
		},

		Render: RenderConfig{
			ThemesDir:     envString("THEMES_DIR", d.Render.ThemesDir),
			DefaultTheme:  envString("DEFAULT_THEME", d.Render.DefaultTheme),
			ThumbnailSize: envString("THUMBNAIL_SIZE", d.Render.ThumbnailSize),
		},

		Discord: DiscordConfig{
			MaxContentLength: envInt("DISCORD_MAX_CONTENT_LENGTH", d.Discord.MaxContentLength),
		},

		Telegram: TelegramConfig{
			BotToken: envString("TELEGRAM_BOT_KEY", ""),
			ChatID:   envString("TELEGRAM_CHAT_ID", ""),
		},

		Logging: LoggingConfig{
			Level:      envString("LOG_LEVEL", d.Logging.Level),
			Dir:        envString("LOG_DIR", ""),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", d.Logging.MaxSizeMB),
			MaxBackups: envInt("LOG_MAX_BACKUPS", d.Logging.MaxBackups),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", d.Logging.MaxAgeDays),
			Compress:   envBoolDefault("LOG_COMPRESS", d.Logging.Compress),
		},

		UpdateChecker: UpdateCheckerConfig{
			Enabled:    envBoolDefault("UPDATE_CHECK_ENABLED", d.UpdateChecker.Enabled),
			Repo:       envString("UPDATE_CHECK_REPO", d.UpdateChecker.Repo),
			Schedule:   envString("UPDATE_CHECK_SCHEDULE", d.UpdateChecker.Schedule),
			WebhookURL: envString("UPDATE_WEBHOOK_URL", ""),
		},

		GitHub: GitHubConfig{
			APIURL: envString("GITHUB_API_URL", d.GitHub.APIURL),
			Token:  envString("GITHUB_TOKEN", ""),
		},

		HealthServer: HealthServerConfig{
			Enabled: envBoolDefault("HEALTH_SERVER_ENABLED", d.HealthServer.Enabled),
			Port:    envInt("HEALTH_SERVER_PORT", d.HealthServer.Port),
		},
	}

	accounts, err := LoadAccounts(cfg.AccountsFile)
	if err != nil {
		return nil, err
	}
	cfg.Accounts = accounts
	cfg.applyWatcherDefaults()

	return cfg, nil
}

type accountsFile struct {
	Accounts []AccountConfig `yaml:"accounts"`
}

// LoadAccounts reads the accounts file. Unknown keys are rejected.
func LoadAccounts(path string) ([]AccountConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("accounts file %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	return file.Accounts, nil
}

func (c *Config) applyWatcherDefaults() {
	for i := range c.Accounts {
		for j := range c.Accounts[i].Watchers {
			w := &c.Accounts[i].Watchers[j]
			if w.PollInterval == 0 {
				w.PollInterval = 60 * time.Second
			}
			if w.PageSize == 0 {
				w.PageSize = 10
			}
			if w.Theme == "" {
				w.Theme = c.Render.DefaultTheme
			}
		}
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}
