package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers a formatted alert to a channel.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Minimum gap between two messages to the same chat. Telegram answers 429
// above roughly 30 messages per minute.
const telegramSendInterval = 2 * time.Second

var errTelegramDisabled = errors.New("telegram sender not configured")

// TelegramSender posts Markdown messages to one chat.
// Nil-safe: a nil sender rejects every send.
type TelegramSender struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	logger   *slog.Logger
	mu       sync.Mutex
	lastSend time.Time
	interval time.Duration
}

// NewTelegramSender connects the bot and checks its token with getMe.
// Returns nil, nil when token is empty (alerts disabled).
func NewTelegramSender(token string, chatID int64, logger *slog.Logger) (*TelegramSender, error) {
	if token == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = false

	logger.Info("Telegram sender initialized", "bot", bot.Self.UserName, "chat_id", chatID)
	return &TelegramSender{
		bot:      bot,
		chatID:   chatID,
		logger:   logger,
		interval: telegramSendInterval,
	}, nil
}

// Send posts text to the configured chat. The Bot API client has no
// context support; ctx only bounds the wait for a send slot.
func (s *TelegramSender) Send(ctx context.Context, text string) error {
	if s == nil {
		return errTelegramDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if wait := s.interval - time.Since(s.lastSend); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	s.lastSend = time.Now()
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// WriterSender prints alerts instead of sending them. Used for dry runs.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSender creates a sender writing to w.
func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

// Send writes text between separator lines.
func (s *WriterSender) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "─────────────────────────────────────\n%s\n─────────────────────────────────────\n", text)
	return err
}
