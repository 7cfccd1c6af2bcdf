// Package telegram serves the chat commands used to manage tracked repositories.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/ericfisherdev/releasebot/internal/application"
	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

const commandTimeout = 30 * time.Second

// Tracker manages chat subscriptions. *application.TrackingService implements it.
type Tracker interface {
	Track(ctx context.Context, chatID int64, name, rawURL string) (application.TrackResult, error)
	Untrack(ctx context.Context, chatID int64, rawURL string) error
	List(ctx context.Context, chatID int64) ([]application.TrackedView, error)
}

// commands is the menu registered with Telegram and rendered by /help.
var commands = []tele.Command{
	{Text: "track", Description: "track a repository: <name> <url>"},
	{Text: "untrack", Description: "stop tracking a repository: <url>"},
	{Text: "list", Description: "list repositories tracked in this chat"},
	{Text: "help", Description: "display this help message"},
}

// NewTeleBot creates a long-polling telebot client.
func NewTeleBot(token string, logger *slog.Logger) (*tele.Bot, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			if c != nil && c.Chat() != nil {
				logger.Error("telegram handler failed", "chat_id", c.Chat().ID, "error", err)
				return
			}
			logger.Error("telegram error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return b, nil
}

// Bot routes Telegram commands to the tracking service.
type Bot struct {
	bot     *tele.Bot
	tracker Tracker
	logger  *slog.Logger
	ctx     context.Context
}

// NewBot registers the command handlers on b.
func NewBot(b *tele.Bot, tracker Tracker, logger *slog.Logger) *Bot {
	bot := &Bot{
		bot:     b,
		tracker: tracker,
		logger:  logger,
		ctx:     context.Background(),
	}

	b.Handle("/track", bot.onTrack)
	b.Handle("/untrack", bot.onUntrack)
	b.Handle("/list", bot.onList)
	b.Handle("/help", bot.onHelp)
	b.Handle("/start", bot.onHelp)
	b.Handle(tele.OnText, bot.onText)

	return bot
}

// Run publishes the command menu and polls for updates until ctx is canceled.
func (b *Bot) Run(ctx context.Context) {
	b.ctx = ctx

	if err := b.bot.SetCommands(commands); err != nil {
		b.logger.Warn("failed to set telegram bot commands", "error", err)
	}

	go b.bot.Start()
	b.logger.Info("telegram bot started")

	<-ctx.Done()
	b.bot.Stop()
	b.logger.Info("telegram bot stopped")
}

func (b *Bot) onTrack(c tele.Context) error {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	return reply(c, b.trackReply(ctx, c.Chat().ID, c.Args()))
}

func (b *Bot) onUntrack(c tele.Context) error {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	return reply(c, b.untrackReply(ctx, c.Chat().ID, c.Args()))
}

func (b *Bot) onList(c tele.Context) error {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	return reply(c, b.listReply(ctx, c.Chat().ID))
}

func (b *Bot) onHelp(c tele.Context) error {
	return reply(c, helpText())
}

func (b *Bot) onText(c tele.Context) error {
	if strings.HasPrefix(c.Text(), "/") {
		return reply(c, helpText())
	}
	return reply(c, "Sorry, I only work with commands.\n\n"+helpText())
}

func reply(c tele.Context, text string) error {
	return c.Send(text, &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
}

func (b *Bot) trackReply(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 2 {
		return "Usage: /track &lt;name&gt; &lt;url&gt;"
	}
	name, rawURL := args[0], args[1]

	res, err := b.tracker.Track(ctx, chatID, name, rawURL)
	if err != nil {
		return b.errorReply(chatID, "track", err)
	}

	label := link(res.Repository)
	switch res.Status {
	case model.TrackStatusAlreadyTracking:
		return "This chat is already tracking " + label + "."
	case model.TrackStatusSubscribed:
		return "Now tracking " + label + " (already followed by other chats)."
	default:
		return "Now tracking " + label + "."
	}
}

func (b *Bot) untrackReply(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /untrack &lt;url&gt;"
	}

	if err := b.tracker.Untrack(ctx, chatID, args[0]); err != nil {
		if errors.Is(err, application.ErrNotSubscribed) {
			return "This chat is not tracking " + html.EscapeString(args[0]) + "."
		}
		return b.errorReply(chatID, "untrack", err)
	}

	return "Stopped tracking " + html.EscapeString(args[0]) + "."
}

func (b *Bot) listReply(ctx context.Context, chatID int64) string {
	views, err := b.tracker.List(ctx, chatID)
	if err != nil {
		return b.errorReply(chatID, "list", err)
	}
	if len(views) == 0 {
		return "No repositories tracked yet."
	}

	var sb strings.Builder
	sb.WriteString("Tracked repositories:")
	for _, v := range views {
		latest := "unknown"
		if v.LatestTag != "" {
			latest = html.EscapeString(v.LatestTag)
		}
		fmt.Fprintf(&sb, "\n- %s - latest: %s", link(v.Repository), latest)
	}

	return sb.String()
}

// errorReply logs unexpected failures and returns the text shown to the chat.
func (b *Bot) errorReply(chatID int64, command string, err error) string {
	if errors.Is(err, application.ErrInvalidInput) {
		return html.EscapeString(userMessage(err))
	}

	b.logger.Error("command failed", "command", command, "chat_id", chatID, "error", err)
	return "Something went wrong, please try again later."
}

// userMessage strips the sentinel prefix from validation errors.
func userMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), application.ErrInvalidInput.Error()+": ")
	if msg == "" {
		return err.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func link(repo model.TrackedRepository) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`,
		html.EscapeString(repo.URL.String()),
		html.EscapeString(repo.Name),
	)
}

func helpText() string {
	var sb strings.Builder
	sb.WriteString("These commands are supported:")
	for _, cmd := range commands {
		fmt.Fprintf(&sb, "\n/%s - %s", cmd.Text, html.EscapeString(cmd.Description))
	}
	return sb.String()
}
