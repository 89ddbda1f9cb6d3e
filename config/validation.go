package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Error joins all validation errors into one message.
func (r ValidationResult) Error() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

var validDirections = []string{"Inbound", "Outbound", "Completed", "Inactive"}

// MaxPageSize is the largest trade page a watcher can deduplicate: every
// listed id must fit in its 25-entry seen set.
const MaxPageSize = 25

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	// Accounts validation
	errors = append(errors, validateAccounts(c.Accounts, c.Telegram.BotToken != "", c.Roblox.SeedPageSize)...)

	// Roblox validation
	errors = append(errors, validateRoblox(&c.Roblox)...)

	// Rolimons validation
	errors = append(errors, validateRolimons(&c.Rolimons)...)

	// Render validation
	errors = append(errors, validateRender(&c.Render)...)

	// Logging validation
	errors = append(errors, validateLogging(&c.Logging)...)

	// UpdateChecker validation
	errors = append(errors, validateUpdateChecker(&c.UpdateChecker)...)

	// HealthServer validation
	errors = append(errors, validateHealthServer(&c.HealthServer)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateAccounts(accounts []AccountConfig, hasTelegram bool, seedPageSize int) []ValidationError {
	var errors []ValidationError

	if len(accounts) == 0 {
		return append(errors, ValidationError{
			Field:   "accounts",
			Message: "at least one account is required",
		})
	}

	names := make(map[string]struct{}, len(accounts))
	for i, acc := range accounts {
		prefix := fmt.Sprintf("accounts[%d]", i)

		if strings.TrimSpace(acc.Name) == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Message: "must not be empty",
			})
		} else if _, dup := names[acc.Name]; dup {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate account name %q", acc.Name),
			})
		}
		names[acc.Name] = struct{}{}

		if strings.TrimSpace(acc.Cookie) == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".cookie",
				Message: "must not be empty",
			})
		}

		if len(acc.Watchers) == 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".watchers",
				Message: "at least one watcher is required",
			})
		}

		seen := make(map[string]struct{}, len(acc.Watchers))
		for j, w := range acc.Watchers {
			errors = append(errors, validateWatcher(fmt.Sprintf("%s.watchers[%d]", prefix, j), &w, hasTelegram)...)

			if w.PageSize > seedPageSize {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.watchers[%d].page_size", prefix, j),
					Message: fmt.Sprintf("must not exceed roblox.seed_page_size (%d)", seedPageSize),
				})
			}

			key := strings.ToLower(w.Direction)
			if _, dup := seen[key]; dup {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.watchers[%d].direction", prefix, j),
					Message: fmt.Sprintf("direction %q is watched twice", w.Direction),
				})
			}
			seen[key] = struct{}{}
		}
	}

	return errors
}

func validateWatcher(prefix string, w *WatcherConfig, hasTelegram bool) []ValidationError {
	var errors []ValidationError

	validDir := false
	for _, d := range validDirections {
		if strings.EqualFold(w.Direction, d) {
			validDir = true
			break
		}
	}
	if !validDir {
		errors = append(errors, ValidationError{
			Field:   prefix + ".direction",
			Message: fmt.Sprintf("must be one of %s", strings.Join(validDirections, ", ")),
		})
	}

	if w.WebhookURL == "" && !hasTelegram {
		errors = append(errors, ValidationError{
			Field:   prefix + ".webhook_url",
			Message: "required when telegram is not configured",
		})
	}
	if w.WebhookURL != "" {
		if u, err := url.Parse(w.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".webhook_url",
				Message: "must be an absolute URL",
			})
		}
	}

	if w.PollInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   prefix + ".poll_interval",
			Message: "must be at least 1 second",
		})
	}

	if w.PageSize < 1 || w.PageSize > MaxPageSize {
		errors = append(errors, ValidationError{
			Field:   prefix + ".page_size",
			Message: fmt.Sprintf("must be between 1 and %d", MaxPageSize),
		})
	}

	if strings.TrimSpace(w.Theme) == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".theme",
			Message: "must not be empty",
		})
	}

	return errors
}

func validateRoblox(r *RobloxConfig) []ValidationError {
	var errors []ValidationError

	for field, val := range map[string]string{
		"roblox.users_url":      r.UsersURL,
		"roblox.trades_url":     r.TradesURL,
		"roblox.auth_url":       r.AuthURL,
		"roblox.thumbnails_url": r.ThumbnailsURL,
	} {
		if val == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "must not be empty",
			})
		}
	}

	if r.RequestsPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "roblox.requests_per_second",
			Message: "must be non-negative",
		})
	}

	if r.MaxAttempts < 1 || r.MaxAttempts > 10 {
		errors = append(errors, ValidationError{
			Field:   "roblox.max_attempts",
			Message: "must be between 1 and 10",
		})
	}

	if r.RetryDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "roblox.retry_delay",
			Message: "must be non-negative",
		})
	}

	if r.SeedPageSize < 1 || r.SeedPageSize > MaxPageSize {
		errors = append(errors, ValidationError{
			Field:   "roblox.seed_page_size",
			Message: fmt.Sprintf("must be between 1 and %d", MaxPageSize),
		})
	}

	if r.DoubleCheckDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "roblox.double_check_delay",
			Message: "must be non-negative",
		})
	}

	return errors
}

func validateRolimons(r *RolimonsConfig) []ValidationError {
	var errors []ValidationError

	if r.ItemDetailsURL == "" {
		errors = append(errors, ValidationError{
			Field:   "rolimons.item_details_url",
			Message: "must not be empty",
		})
	}

	if r.RefreshInterval != 0 && r.RefreshInterval < 10*time.Second {
		errors = append(errors, ValidationError{
			Field:   "rolimons.refresh_interval",
			Message: "must be 0 (per notification) or at least 10 seconds",
		})
	}

	return errors
}

func validateRender(r *RenderConfig) []ValidationError {
	var errors []ValidationError

	if r.ThemesDir == "" {
		errors = append(errors, ValidationError{
			Field:   "render.themes_dir",
			Message: "must not be empty",
		})
	}

	var w, h int
	if _, err := fmt.Sscanf(r.ThumbnailSize, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		errors = append(errors, ValidationError{
			Field:   "render.thumbnail_size",
			Message: "must look like WIDTHxHEIGHT",
		})
	}

	return errors
}

func validateLogging(l *LoggingConfig) []ValidationError {
	var errors []ValidationError

	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", l.Level),
		})
	}

	if l.Dir != "" && l.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateUpdateChecker(u *UpdateCheckerConfig) []ValidationError {
	var errors []ValidationError

	if !u.Enabled {
		return errors
	}

	if parts := strings.Split(u.Repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		errors = append(errors, ValidationError{
			Field:   "update_checker.repo",
			Message: "must look like owner/name",
		})
	}

	if strings.TrimSpace(u.Schedule) == "" {
		errors = append(errors, ValidationError{
			Field:   "update_checker.schedule",
			Message: "must not be empty",
		})
	}

	return errors
}

func validateHealthServer(hs *HealthServerConfig) []ValidationError {
	var errors []ValidationError

	if hs.Enabled && (hs.Port < 1 || hs.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "health_server.port",
			Message: "must be between 1 and 65535",
		})
	}

	return errors
}
