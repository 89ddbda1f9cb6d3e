package clients

import (
	"horizon/clients/discord"
	"horizon/clients/github"
	"horizon/clients/notifier"
	"horizon/clients/roblox"
	"horizon/clients/rolimons"
	"horizon/clients/telegram"
	"horizon/clients/thumbnails"
	"horizon/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Rolimons   *rolimons.Client
	Thumbnails *thumbnails.Client
	GitHub     *github.Client
	Telegram   *telegram.TelegramClient // nil when not configured

	cfg *config.Config
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clients{
		Logger:     logger,
		Rolimons:   rolimons.NewClient(logger, cfg),
		Thumbnails: thumbnails.NewClient(logger, cfg),
		GitHub:     github.NewClient(logger, cfg),
		Telegram:   telegram.NewTelegramClient(logger, cfg),
		cfg:        cfg,
	}
}

// Session returns a new platform session for one account cookie.
func (c *Clients) Session(cookie string) *roblox.Session {
	return roblox.NewSession(c.Logger, c.cfg, cookie)
}

// WatcherNotifier combines the watcher's Discord webhook, if any, with the
// shared Telegram chat, if configured.
func (c *Clients) WatcherNotifier(webhookURL string) (notifier.Notifier, error) {
	var channels []notifier.Notifier

	if webhookURL != "" {
		wc, err := discord.NewWebhookClient(c.Logger, c.cfg, webhookURL)
		if err != nil {
			return nil, err
		}
		channels = append(channels, wc)
	}
	if c.Telegram != nil {
		channels = append(channels, c.Telegram)
	}

	if len(channels) == 0 {
		return nil, notifier.ErrNoChannels
	}
	return notifier.NewMultiNotifier(channels...), nil
}

// AnnouncementNotifier is the channel set used for release announcements.
func (c *Clients) AnnouncementNotifier(webhookURL string) (notifier.Notifier, error) {
	return c.WatcherNotifier(webhookURL)
}
