package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// sender is the slice of tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts displacement notices to the operations chat.
// Sends are rate limited to stay under Telegram's per-chat message cap.
type TelegramNotifier struct {
	bot     sender
	chatID  int64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegramNotifier connects to the bot API. Telegram allows roughly one
// message per second to a single chat.
func NewTelegramNotifier(token string, chatID int64, logger zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return &TelegramNotifier{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:  logger.With().Str("component", "telegram_notify").Logger(),
	}, nil
}

func (n *TelegramNotifier) NotifyRescheduled(ctx context.Context, bookingID int64, oldTime, newTime time.Time) error {
	text := fmt.Sprintf("Booking #%d rescheduled: %s -> %s",
		bookingID, oldTime.Format("02.01 15:04"), newTime.Format("02.01 15:04"))
	return n.send(ctx, text)
}

func (n *TelegramNotifier) NotifyBayChanged(ctx context.Context, bookingID int64, newResourceID int64) error {
	text := fmt.Sprintf("Booking #%d moved to bay/team %d, time unchanged", bookingID, newResourceID)
	return n.send(ctx, text)
}

func (n *TelegramNotifier) NotifyUpcoming(ctx context.Context, bookingID int64, start time.Time) error {
	text := fmt.Sprintf("Reminder: booking #%d starts %s", bookingID, start.Format("02.01 15:04"))
	return n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("Telegram send failed")
		return err
	}
	return nil
}
