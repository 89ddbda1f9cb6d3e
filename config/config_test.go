package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeAccounts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}
	return path
}

const sampleAccounts = `
accounts:
  - name: main
    cookie: "_|WARNING:-DO-NOT-SHARE-THIS.|_ABCDEF"
    watchers:
      - direction: Completed
        webhook_url: https://discord.com/api/webhooks/1/abc
        content: "{give_user_name}"
      - direction: inbound
        webhook_url: https://discord.com/api/webhooks/2/def
        poll_interval: 30s
        page_size: 25
        theme: dark
        include_unvalued_in_total: false
        double_check: true
`

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"ROBLOX_USERS_URL", "ROBLOX_TRADES_URL", "ROBLOX_MAX_ATTEMPTS", "ROBLOX_RETRY_DELAY",
		"ROLIMONS_URL", "ROLIMONS_REFRESH_INTERVAL", "THEMES_DIR", "THUMBNAIL_SIZE", "DEFAULT_THEME",
		"UPDATE_CHECK_REPO", "UPDATE_CHECK_SCHEDULE", "ROBLOX_SEED_PAGE_SIZE", "DOUBLE_CHECK_DELAY",
		"TELEGRAM_BOT_KEY", "TELEGRAM_CHAT_ID", "LOG_LEVEL", "LOG_DIR",
		"UPDATE_CHECK_ENABLED", "HEALTH_SERVER_ENABLED", "HEALTH_SERVER_PORT",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
	}
	t.Setenv("HORIZON_ACCOUNTS_FILE", writeAccounts(t, sampleAccounts))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Roblox.TradesURL != "https://trades.roblox.com" {
		t.Errorf("unexpected trades url: %s", cfg.Roblox.TradesURL)
	}
	if cfg.Roblox.MaxAttempts != 3 {
		t.Errorf("unexpected max attempts: %d", cfg.Roblox.MaxAttempts)
	}
	if cfg.Roblox.SeedPageSize != 25 {
		t.Errorf("unexpected seed page size: %d", cfg.Roblox.SeedPageSize)
	}
	if cfg.Roblox.DoubleCheckDelay != 10*time.Second {
		t.Errorf("unexpected double check delay: %v", cfg.Roblox.DoubleCheckDelay)
	}
	if cfg.Rolimons.RefreshInterval != 0 {
		t.Errorf("expected per-notification valuation refresh, got %v", cfg.Rolimons.RefreshInterval)
	}
	if cfg.Render.ThumbnailSize != "700x700" {
		t.Errorf("unexpected thumbnail size: %s", cfg.Render.ThumbnailSize)
	}
	if cfg.Discord.MaxContentLength != 2000 {
		t.Errorf("unexpected discord content length: %d", cfg.Discord.MaxContentLength)
	}
	if !cfg.HealthServer.Enabled || cfg.HealthServer.Port != 8080 {
		t.Errorf("unexpected health server config: %+v", cfg.HealthServer)
	}

	if len(cfg.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(cfg.Accounts))
	}
	acc := cfg.Accounts[0]
	if len(acc.Watchers) != 2 {
		t.Fatalf("expected 2 watchers, got %d", len(acc.Watchers))
	}

	completed := acc.Watchers[0]
	if completed.PollInterval != 60*time.Second {
		t.Errorf("expected default poll interval, got %v", completed.PollInterval)
	}
	if completed.PageSize != 10 {
		t.Errorf("expected default page size, got %d", completed.PageSize)
	}
	if completed.Theme != "default" {
		t.Errorf("expected default theme, got %s", completed.Theme)
	}
	if !completed.IncludeUnvalued() {
		t.Error("expected unvalued items to count by default")
	}

	inbound := acc.Watchers[1]
	if inbound.PollInterval != 30*time.Second {
		t.Errorf("unexpected poll interval: %v", inbound.PollInterval)
	}
	if inbound.Theme != "dark" {
		t.Errorf("unexpected theme: %s", inbound.Theme)
	}
	if inbound.IncludeUnvalued() {
		t.Error("expected include_unvalued_in_total=false to be honored")
	}
	if !inbound.DoubleCheck {
		t.Error("expected double check enabled")
	}

	if res := cfg.Validate(); !res.Valid {
		t.Errorf("expected valid config, got: %s", res.Error())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HORIZON_ACCOUNTS_FILE", writeAccounts(t, sampleAccounts))
	t.Setenv("ROBLOX_MAX_ATTEMPTS", "5")
	t.Setenv("ROBLOX_RETRY_DELAY", "250ms")
	t.Setenv("ROLIMONS_REFRESH_INTERVAL", "5m")
	t.Setenv("TELEGRAM_BOT_KEY", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "chat")
	t.Setenv("HEALTH_SERVER_ENABLED", "false")
	t.Setenv("DEFAULT_THEME", "neon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Roblox.MaxAttempts != 5 {
		t.Errorf("unexpected max attempts: %d", cfg.Roblox.MaxAttempts)
	}
	if cfg.Roblox.RetryDelay != 250*time.Millisecond {
		t.Errorf("unexpected retry delay: %v", cfg.Roblox.RetryDelay)
	}
	if cfg.Rolimons.RefreshInterval != 5*time.Minute {
		t.Errorf("unexpected refresh interval: %v", cfg.Rolimons.RefreshInterval)
	}
	if cfg.Telegram.BotToken != "token" || cfg.Telegram.ChatID != "chat" {
		t.Errorf("unexpected telegram config: %+v", cfg.Telegram)
	}
	if cfg.HealthServer.Enabled {
		t.Error("expected health server disabled")
	}
	if cfg.Accounts[0].Watchers[0].Theme != "neon" {
		t.Errorf("expected default theme from env, got %s", cfg.Accounts[0].Watchers[0].Theme)
	}
}

func TestLoad_MissingAccountsFile(t *testing.T) {
	t.Setenv("HORIZON_ACCOUNTS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing accounts file")
	}
}

func TestLoadAccounts_UnknownField(t *testing.T) {
	path := writeAccounts(t, `
accounts:
  - name: main
    cookie: abc
    webhook: https://example.com
`)

	_, err := LoadAccounts(path)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "webhook") {
		t.Errorf("expected error to name the field, got: %v", err)
	}
}

func validConfig() *Config {
	cfg := Defaults()
	cfg.Accounts = []AccountConfig{{
		Name:   "main",
		Cookie: "cookie",
		Watchers: []WatcherConfig{{
			Direction:    "Completed",
			WebhookURL:   "https://discord.com/api/webhooks/1/abc",
			PollInterval: time.Minute,
			PageSize:     10,
			Theme:        "default",
		}},
	}}
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	res := validConfig().Validate()
	if !res.Valid {
		t.Errorf("expected valid, got errors: %+v", res.Errors)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "no accounts",
			mutate: func(c *Config) { c.Accounts = nil },
			field:  "accounts",
		},
		{
			name:   "empty cookie",
			mutate: func(c *Config) { c.Accounts[0].Cookie = " " },
			field:  "accounts[0].cookie",
		},
		{
			name:   "bad direction",
			mutate: func(c *Config) { c.Accounts[0].Watchers[0].Direction = "Sideways" },
			field:  "accounts[0].watchers[0].direction",
		},
		{
			name: "duplicate direction",
			mutate: func(c *Config) {
				c.Accounts[0].Watchers = append(c.Accounts[0].Watchers, c.Accounts[0].Watchers[0])
			},
			field: "accounts[0].watchers[1].direction",
		},
		{
			name:   "missing webhook without telegram",
			mutate: func(c *Config) { c.Accounts[0].Watchers[0].WebhookURL = "" },
			field:  "accounts[0].watchers[0].webhook_url",
		},
		{
			name:   "poll interval too short",
			mutate: func(c *Config) { c.Accounts[0].Watchers[0].PollInterval = 100 * time.Millisecond },
			field:  "accounts[0].watchers[0].poll_interval",
		},
		{
			name:   "page larger than seen set",
			mutate: func(c *Config) { c.Accounts[0].Watchers[0].PageSize = 40 },
			field:  "accounts[0].watchers[0].page_size",
		},
		{
			name:   "page larger than seed",
			mutate: func(c *Config) { c.Roblox.SeedPageSize = 5 },
			field:  "accounts[0].watchers[0].page_size",
		},
		{
			name:   "seed larger than seen set",
			mutate: func(c *Config) { c.Roblox.SeedPageSize = 50 },
			field:  "roblox.seed_page_size",
		},
		{
			name:   "max attempts",
			mutate: func(c *Config) { c.Roblox.MaxAttempts = 0 },
			field:  "roblox.max_attempts",
		},
		{
			name:   "refresh interval",
			mutate: func(c *Config) { c.Rolimons.RefreshInterval = time.Second },
			field:  "rolimons.refresh_interval",
		},
		{
			name:   "thumbnail size",
			mutate: func(c *Config) { c.Render.ThumbnailSize = "big" },
			field:  "render.thumbnail_size",
		},
		{
			name:   "log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
			field:  "logging.level",
		},
		{
			name:   "update repo",
			mutate: func(c *Config) { c.UpdateChecker.Repo = "horizon" },
			field:  "update_checker.repo",
		},
		{
			name:   "health port",
			mutate: func(c *Config) { c.HealthServer.Port = 70000 },
			field:  "health_server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			res := cfg.Validate()
			if res.Valid {
				t.Fatal("expected invalid config")
			}
			found := false
			for _, e := range res.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for %s, got: %+v", tt.field, res.Errors)
			}
		})
	}
}

func TestValidate_TelegramOnlyWatcher(t *testing.T) {
	cfg := validConfig()
	cfg.Accounts[0].Watchers[0].WebhookURL = ""
	cfg.Telegram.BotToken = "token"

	if res := cfg.Validate(); !res.Valid {
		t.Errorf("expected valid config with telegram delivery, got: %s", res.Error())
	}
}
