// Package telegram is the chat transport: it delivers change notifications
// to the configured chat and serves the bot commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"platinmods-notifier/broadcast"
	"platinmods-notifier/config"
	"platinmods-notifier/pkg/notifier"
	"platinmods-notifier/users"
)

// Checker runs one out-of-band monitoring pass. Implemented by the poll
// monitor.
type Checker interface {
	RunOnce(ctx context.Context) (notifier.Summary, error)
}

// Bot wraps the Telegram long-poll bot. It implements the poll package's
// Notifier: one message per transition event, sent to the notification chat.
type Bot struct {
	bot      *tele.Bot
	cfg      config.Telegram
	registry *users.Registry
	caster   *broadcast.Engine
	checker  Checker
	presence []notifier.Target
	forums   []notifier.Target
	logger   *slog.Logger
}

// Config wires a Bot.
type Config struct {
	Telegram config.Telegram
	Registry *users.Registry
	Caster   *broadcast.Engine
	Presence []notifier.Target
	Forums   []notifier.Target
	Logger   *slog.Logger
}

// New connects to the Telegram API. The checker is attached separately
// because the monitor and the bot reference each other.
func New(cfg Config) (*Bot, error) {
	logger := cfg.Logger
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, _ tele.Context) {
			logger.Warn("Telegram handler error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return &Bot{
		bot:      b,
		cfg:      cfg.Telegram,
		registry: cfg.Registry,
		caster:   cfg.Caster,
		presence: cfg.Presence,
		forums:   cfg.Forums,
		logger:   logger,
	}, nil
}

// SetChecker attaches the manual-pass runner. Must happen before Start.
func (b *Bot) SetChecker(c Checker) { b.checker = c }

// Start registers the command handlers and blocks on the long-poll loop
// until the context is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.registerHandlers(ctx)

	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()

	b.logger.Info("Telegram polling started")
	b.bot.Start()
	b.logger.Info("Telegram polling stopped")
}

var sendOpts = &tele.SendOptions{
	ParseMode:             tele.ModeMarkdown,
	DisableWebPagePreview: true,
}

// Event renders and delivers one transition notification.
func (b *Bot) Event(_ context.Context, ev notifier.Event) error {
	return b.send(b.cfg.NotificationChatID, renderEvent(ev))
}

// Announce delivers a scheduler lifecycle message to the notification chat.
func (b *Bot) Announce(_ context.Context, text string) error {
	return b.send(b.cfg.NotificationChatID, "👋 "+text)
}

func (b *Bot) send(chatID int64, text string) error {
	_, err := b.bot.Send(tele.ChatID(chatID), text, sendOpts)
	return err
}

// classifySendError translates telebot errors into the broadcast engine's
// taxonomy: recipients that are gone for good versus flood-control waits.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &broadcast.RetryAfterError{After: time.Duration(flood.RetryAfter) * time.Second}
	}
	if errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrChatNotFound) {
		return fmt.Errorf("%w: %w", broadcast.ErrRecipientGone, err)
	}
	return err
}
