// Package telegram implements the Notifier port on top of telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

// DefaultRatePerSecond stays below Telegram's global limit of about 30 messages per second.
const DefaultRatePerSecond = 20

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Notifier)(nil)

// Sender is the subset of *tele.Bot the notifier uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier delivers HTML messages to Telegram chats, throttled by a shared
// token bucket.
type Notifier struct {
	bot     Sender
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewNotifier creates a Notifier sending at most perSecond messages per second.
func NewNotifier(bot Sender, perSecond int, logger *slog.Logger) *Notifier {
	if perSecond <= 0 {
		perSecond = DefaultRatePerSecond
	}
	return &Notifier{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		logger:  logger,
	}
}

// Send delivers text to chatID with HTML parse mode. Errors wrap
// driven.ErrBotBlocked, driven.ErrChatUnreachable or driven.ErrMalformedMessage
// when Telegram reports one of those conditions.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}

	_, err := n.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("send message to chat %d: %w", chatID, classify(err))
	}

	n.logger.Debug("message sent", "chat_id", chatID)
	return nil
}

// classify maps telebot errors onto the delivery sentinels, keeping the
// underlying error in the chain.
func classify(err error) error {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser), errors.Is(err, tele.ErrUserIsDeactivated):
		return fmt.Errorf("%w: %w", driven.ErrBotBlocked, err)
	case errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrKickedFromGroup),
		errors.Is(err, tele.ErrKickedFromSuperGroup),
		errors.Is(err, tele.ErrNotStartedByUser):
		return fmt.Errorf("%w: %w", driven.ErrChatUnreachable, err)
	case strings.Contains(err.Error(), "Bad Request"):
		return fmt.Errorf("%w: %w", driven.ErrMalformedMessage, err)
	default:
		return err
	}
}
