package discord

import (
	"bytes"
	"context"
	"fmt"
	"horizon/clients/notifier"
	"horizon/config"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const announcementColor = 0x5865F2

// WebhookClient posts notifications to one Discord webhook.
// Implements notifier.Notifier interface.
type WebhookClient struct {
	logger     *zap.Logger
	session    *discordgo.Session
	webhookID  string
	token      string
	maxContent int
}

// ParseWebhookURL extracts the id and token from a webhook URL such as
// https://discord.com/api/webhooks/{id}/{token}.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse webhook url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("webhook url %q has no webhooks/{id}/{token} path", u.Redacted())
}

func NewWebhookClient(logger *zap.Logger, cfg *config.Config, webhookURL string) (*WebhookClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	// Webhook execution is authorized by the token in the URL, so the
	// session needs no bot token.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	logger.Info("discord webhook initialized", zap.String("webhookID", id))

	return &WebhookClient{
		logger:     logger,
		session:    session,
		webhookID:  id,
		token:      token,
		maxContent: cfg.Discord.MaxContentLength,
	}, nil
}

// Send posts the notification, attaching the image when present.
// Implements notifier.Notifier interface.
func (wc *WebhookClient) Send(ctx context.Context, n notifier.Notification) error {
	if wc.session == nil {
		return fmt.Errorf("discord session not initialized")
	}

	params := wc.buildParams(n)

	_, err := wc.session.WebhookExecute(wc.webhookID, wc.token, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook execute: %w", err)
	}

	wc.logger.Debug("sent discord notification",
		zap.String("webhookID", wc.webhookID),
		zap.Bool("hasImage", len(n.Image) > 0),
	)
	return nil
}

func (wc *WebhookClient) buildParams(n notifier.Notification) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{}

	if n.Title != "" {
		params.Embeds = []*discordgo.MessageEmbed{{
			Title:       n.Title,
			Description: notifier.Truncate(n.Content, 4096),
			URL:         n.URL,
			Color:       announcementColor,
		}}
	} else {
		params.Content = notifier.Truncate(n.Content, wc.maxContent)
	}

	if len(n.Image) > 0 {
		name := n.FileName
		if name == "" {
			name = "trade.png"
		}
		params.Files = []*discordgo.File{{
			Name:        name,
			ContentType: "image/png",
			Reader:      bytes.NewReader(n.Image),
		}}
	}

	return params
}

// Close is a no-op; webhook sessions hold no gateway connection.
func (wc *WebhookClient) Close() error {
	return nil
}
