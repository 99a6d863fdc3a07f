// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/pumpwatch/internal/logger"
	"github.com/rewired-gh/pumpwatch/internal/models"
)

const recentAlertCount = 5

// StatusSource reports the monitor's state for /status.
type StatusSource interface {
	Status() string
}

// AlertSource reads the durable alert log for /recent.
type AlertSource interface {
	GetRecentAlerts(k int) ([]models.Alert, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &Client{bot: bot, chatID: chatIDInt}, nil
}

// Send delivers a plain text message. It makes a single attempt.
func (c *Client) Send(text string) error {
	if _, err := c.bot.Send(tgbotapi.NewMessage(c.chatID, text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendError sends a monitoring error notification.
func (c *Client) SendError(cause error) error {
	msg := tgbotapi.NewMessage(c.chatID, formatError(cause))
	msg.ParseMode = "MarkdownV2"
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send error notice: %w", err)
	}
	return nil
}

func formatError(err error) string {
	return fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(err.Error()))
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, status StatusSource, alerts AlertSource) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					reply := commandReply(update.Message.Command(), status, alerts)
					if reply == "" {
						continue
					}
					if _, err := c.bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, reply)); err != nil {
						logger.Warn("failed to answer /%s: %v", update.Message.Command(), err)
					}
				}
			}
		}
	}()
}

// commandReply returns the text answering a bot command, or "" for unknown commands.
func commandReply(command string, status StatusSource, alerts AlertSource) string {
	switch command {
	case "ping":
		return "Pong"
	case "status":
		if status == nil {
			return "Status unavailable"
		}
		return status.Status()
	case "recent":
		if alerts == nil {
			return "No alert log configured"
		}
		recent, err := alerts.GetRecentAlerts(recentAlertCount)
		if err != nil {
			logger.Error("failed to read recent alerts: %v", err)
			return "Failed to read recent alerts"
		}
		return formatRecent(recent)
	}
	return ""
}

func formatRecent(alerts []models.Alert) string {
	if len(alerts) == 0 {
		return "No alerts recorded yet"
	}
	var b strings.Builder
	b.WriteString("Recent alerts:\n")
	for i, a := range alerts {
		fmt.Fprintf(&b, "%d. [%s] %s Score=%d", i+1, a.DetectedAt.UTC().Format(models.TimeLayout), a.Symbol, a.Score)
		if len(a.Reasons) > 0 {
			fmt.Fprintf(&b, " | %s", strings.Join(a.Reasons, ", "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
