// Package telegram delivers campaign messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrRecipientUnreachable means the chat will never accept messages from the
// bot again until the user interacts with it (blocked, deactivated, unknown chat).
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// Gateway sends a message to a chat
type Gateway interface {
	Send(ctx context.Context, chatID string, msg models.Message) error
}

// BotGateway sends through the Bot API
type BotGateway struct {
	bot       *tgbotapi.BotAPI
	parseMode string
}

// NewBotGateway authenticates the bot token and returns a gateway.
// timeout bounds every Bot API round trip.
func NewBotGateway(token, parseMode string, timeout time.Duration) (*BotGateway, error) {
	client := &http.Client{Timeout: timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate telegram bot: %w", err)
	}
	return &BotGateway{bot: bot, parseMode: parseMode}, nil
}

// Build converts a campaign message to a Bot API send config
func Build(chatID int64, msg models.Message, defaultParseMode string) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(chatID, msg.Text)
	out.ParseMode = msg.ParseMode
	if out.ParseMode == "" {
		out.ParseMode = defaultParseMode
	}
	if len(msg.Buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL)))
		}
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return out
}

// Send delivers msg to chatID
func (g *BotGateway) Send(ctx context.Context, chatID string, msg models.Message) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid chat id %q", ErrRecipientUnreachable, chatID)
	}

	done := make(chan error, 1)
	go func() {
		_, err := g.bot.Send(Build(id, msg, g.parseMode))
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return classify(err)
	}
}

// classify maps Bot API errors that mean "stop sending to this chat" onto ErrRecipientUnreachable
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Message)
		if apiErr.Code == http.StatusForbidden ||
			strings.Contains(desc, "chat not found") ||
			strings.Contains(desc, "bot was blocked") ||
			strings.Contains(desc, "user is deactivated") {
			return fmt.Errorf("%w: %s", ErrRecipientUnreachable, apiErr.Message)
		}
	}
	return err
}

// SentMessage is a message captured by MockGateway
type SentMessage struct {
	ChatID  string
	Message models.Message
	At      time.Time
}

// MockGateway records messages instead of sending them. Failures maps chat
// ids to the error Send should return for them.
type MockGateway struct {
	mu       sync.Mutex
	Sent     []SentMessage
	Failures map[string]error
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{Failures: map[string]error{}}
}

// Send records msg, or returns the configured failure for chatID
func (g *MockGateway) Send(ctx context.Context, chatID string, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.Failures[chatID]; ok {
		return err
	}
	g.Sent = append(g.Sent, SentMessage{ChatID: chatID, Message: msg, At: time.Now()})
	return nil
}

// Fail makes future sends to chatID return err
func (g *MockGateway) Fail(chatID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Failures[chatID] = err
}

// Messages returns a copy of everything sent so far
func (g *MockGateway) Messages() []SentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SentMessage, len(g.Sent))
	copy(out, g.Sent)
	return out
}
