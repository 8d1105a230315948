package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/schedule"
)

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// Sender is the part of *bot.Bot used here. Tests pass a fake.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram posts every event to the admin chat. Submission and void events
// are also sent to the employee's own chat when it is known.
type Telegram struct {
	sender      Sender
	adminChatID string
	logger      *zap.Logger

	// Attempts and Backoff control delivery retries of one message.
	Attempts uint64
	Backoff  time.Duration
}

// NewTelegram creates a bot client for token. The token is not verified
// against the API until the first message is sent.
func NewTelegram(token, adminChatID string, logger *zap.Logger) (*Telegram, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return NewTelegramWithSender(b, adminChatID, logger), nil
}

func NewTelegramWithSender(sender Sender, adminChatID string, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		sender:      sender,
		adminChatID: adminChatID,
		logger:      logger.Named("telegram"),
		Attempts:    3,
		Backoff:     500 * time.Millisecond,
	}
}

func (t *Telegram) Notify(ctx context.Context, ev schedule.Event) error {
	text := Format(ev)

	var err error
	for _, chatID := range t.recipients(ev) {
		err = multierr.Append(err, t.send(ctx, chatID, text))
	}
	return err
}

func (t *Telegram) recipients(ev schedule.Event) []string {
	var chats []string
	if t.adminChatID != "" {
		chats = append(chats, t.adminChatID)
	}
	switch ev.Kind {
	case schedule.EventScheduleSubmitted, schedule.EventScheduleVoided:
		if ev.ChatID != "" && ev.ChatID != t.adminChatID {
			chats = append(chats, ev.ChatID)
		}
	}
	return chats
}

func (t *Telegram) send(ctx context.Context, chatID, text string) error {
	attempts := t.Attempts
	if attempts == 0 {
		attempts = 1
	}
	base := t.Backoff
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		if err != nil {
			t.logger.Debug("send failed", zap.String("chat_id", chatID), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("telegram chat %s: %w", chatID, err)
	}
	return nil
}
