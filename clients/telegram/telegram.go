package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"horizon/clients/notifier"
	"horizon/config"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	telegramAPIURL = "https://api.telegram.org"

	// Telegram limits
	maxCaptionLength = 1024
	maxMessageLength = 4096
)

// TelegramClient sends notifications to a Telegram chat.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger   *zap.Logger
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramClient returns nil when Telegram is not configured.
func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.Telegram.BotToken
	if token == "" || cfg.Telegram.ChatID == "" {
		logger.Info("TELEGRAM_BOT_KEY or TELEGRAM_CHAT_ID not set, Telegram delivery disabled")
		return nil
	}

	logger.Info("telegram bot initialized", zap.String("chatID", cfg.Telegram.ChatID))

	return &TelegramClient{
		logger:   logger,
		apiURL:   telegramAPIURL,
		botToken: token,
		chatID:   cfg.Telegram.ChatID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Send delivers the notification as a photo with caption, or as a text
// message when there is no image.
// Implements notifier.Notifier interface.
func (tc *TelegramClient) Send(ctx context.Context, n notifier.Notification) error {
	text := n.Content
	if n.Title != "" {
		text = n.Title + "\n" + text
		if n.URL != "" {
			text += "\n" + n.URL
		}
	}

	if len(n.Image) == 0 {
		return tc.sendMessage(ctx, notifier.Truncate(text, maxMessageLength))
	}
	return tc.sendPhoto(ctx, notifier.Truncate(text, maxCaptionLength), n.FileName, n.Image)
}

func (tc *TelegramClient) sendPhoto(ctx context.Context, caption, fileName string, photo []byte) error {
	if fileName == "" {
		fileName = "trade.png"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", tc.chatID); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return fmt.Errorf("write caption: %w", err)
		}
	}
	part, err := w.CreateFormFile("photo", fileName)
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("write photo: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	return tc.post(ctx, "sendPhoto", w.FormDataContentType(), &body)
}

func (tc *TelegramClient) sendMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id": tc.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return tc.post(ctx, "sendMessage", "application/json", bytes.NewReader(body))
}

func (tc *TelegramClient) post(ctx context.Context, method, contentType string, body io.Reader) error {
	url := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(tc.apiURL, "/"), tc.botToken, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	tc.logger.Debug("sent telegram notification", zap.String("method", method))
	return nil
}

// Close cleans up resources. Implements notifier.Notifier interface.
func (tc *TelegramClient) Close() error {
	return nil
}
