package driven

import (
	"context"
	"errors"
)

// Sentinel errors returned by Notifier implementations.
var (
	// ErrChatUnreachable indicates the chat does not exist or the bot was removed from it.
	ErrChatUnreachable = errors.New("chat unreachable")

	// ErrBotBlocked indicates the user blocked the bot.
	ErrBotBlocked = errors.New("bot blocked by user")

	// ErrMalformedMessage indicates the message was rejected as invalid.
	ErrMalformedMessage = errors.New("malformed message")
)

// Notifier defines the driven port for delivering a formatted message to a chat.
// Retrying is the implementation's concern; callers deliver at most once per cycle.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}
