package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"platinmods-notifier/broadcast"
)

// checkTimeout bounds a manual pass triggered from chat.
const checkTimeout = 5 * time.Minute

// registerHandlers wires the chat commands. ctx is the process lifetime;
// background work started by a handler stops when it ends.
func (b *Bot) registerHandlers(ctx context.Context) {
	b.bot.Handle("/start", func(c tele.Context) error { return b.handleStart(ctx, c) })
	b.bot.Handle("/check", func(c tele.Context) error { return b.handleCheck(ctx, c) })
	b.bot.Handle("/broadcast", func(c tele.Context) error { return b.handleBroadcast(ctx, c) })
	b.bot.Handle("/users", func(c tele.Context) error { return b.handleUsers(ctx, c) })
}

// handleStart registers the sender for broadcasts and replies with the chat
// ID so it can be pasted into the notification config.
func (b *Bot) handleStart(ctx context.Context, c tele.Context) error {
	chat := c.Chat()
	sender := c.Sender()
	if chat == nil || sender == nil {
		return nil
	}

	if chat.Type == tele.ChatPrivate {
		name := strings.TrimSpace(sender.FirstName + " " + sender.LastName)
		if name == "" {
			name = sender.Username
		}
		if err := b.registry.Add(ctx, sender.ID, name); err != nil {
			b.logger.Warn("Failed to register user", "user_id", sender.ID, "error", err)
		} else {
			b.logger.Info("User registered", "user_id", sender.ID, "name", name)
		}
		return c.Send(fmt.Sprintf(
			"👋 Hi! You are registered for announcements.\n\nYour chat ID is `%d`.", chat.ID), sendOpts)
	}

	return c.Send(fmt.Sprintf("This group's chat ID is `%d`.", chat.ID), sendOpts)
}

// handleCheck runs a manual monitoring pass. Private chats only, authorized
// users only. The pass runs in the background; the ack comes first.
func (b *Bot) handleCheck(ctx context.Context, c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
		return c.Send("The /check command only works in a private chat with me.", sendOpts)
	}
	if !b.cfg.IsAuthorized(sender.ID) {
		b.logger.Warn("Unauthorized /check", "user_id", sender.ID)
		return c.Send("🚫 You are not authorized to run checks.", sendOpts)
	}
	if b.checker == nil {
		return c.Send("The checker is not ready yet, try again shortly.", sendOpts)
	}

	if err := c.Send("🔍 Running a manual check, this can take a minute...", sendOpts); err != nil {
		return err
	}

	chatID := c.Chat().ID
	go func() {
		runCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		summary, err := b.checker.RunOnce(runCtx)
		if err != nil {
			b.logger.Warn("Manual check failed", "user_id", sender.ID, "error", err)
			if sendErr := b.send(chatID, "❌ Manual check failed: "+err.Error()); sendErr != nil {
				b.logger.Warn("Failed to deliver check failure", "error", sendErr)
			}
			return
		}
		if err := b.send(chatID, renderSummary(summary, b.presence, b.forums)); err != nil {
			b.logger.Warn("Failed to deliver check summary", "error", err)
		}
	}()
	return nil
}

// handleBroadcast copies the replied-to message to every registered user.
// Admin only. Usage: reply to the message to broadcast with /broadcast.
func (b *Bot) handleBroadcast(ctx context.Context, c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if !b.cfg.IsAdmin(sender.ID) {
		b.logger.Warn("Unauthorized /broadcast", "user_id", sender.ID)
		return c.Send("🚫 Admin only.", sendOpts)
	}
	msg := c.Message()
	if msg == nil || msg.ReplyTo == nil {
		return c.Send("Reply to the message you want to broadcast with /broadcast.", sendOpts)
	}

	status, err := b.bot.Send(c.Chat(), "📣 Broadcast starting...", sendOpts)
	if err != nil {
		return err
	}

	payload := msg.ReplyTo
	go func() {
		send := func(_ context.Context, userID int64) error {
			_, err := b.bot.Copy(tele.ChatID(userID), payload)
			return classifySendError(err)
		}
		progress := func(r broadcast.Report) {
			text := renderBroadcastProgress(r.Total, r.Done, r.Succeeded, r.Blocked, r.Failed)
			if _, err := b.bot.Edit(status, text, sendOpts); err != nil {
				b.logger.Warn("Failed to update broadcast status", "error", err)
			}
		}

		report, err := b.caster.Run(ctx, send, progress)
		if err != nil {
			b.logger.Warn("Broadcast ended early", "error", err)
		}
		final := renderBroadcastDone(report.Total, report.Succeeded, report.Blocked, report.Failed,
			report.Elapsed.Round(time.Second).String())
		if _, err := b.bot.Edit(status, final, sendOpts); err != nil {
			b.logger.Warn("Failed to post broadcast report", "error", err)
		}
	}()
	return nil
}

// handleUsers reports the registry size and attaches a JSON export. Admin
// only.
func (b *Bot) handleUsers(ctx context.Context, c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if !b.cfg.IsAdmin(sender.ID) {
		b.logger.Warn("Unauthorized /users", "user_id", sender.ID)
		return c.Send("🚫 Admin only.", sendOpts)
	}

	all, err := b.registry.All(ctx)
	if err != nil {
		b.logger.Warn("User export failed", "error", err)
		return c.Send("❌ Failed to read the user registry: "+err.Error(), sendOpts)
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return c.Send("❌ Failed to encode the user list: "+err.Error(), sendOpts)
	}

	doc := &tele.Document{
		File:     tele.FromReader(strings.NewReader(string(data))),
		FileName: fmt.Sprintf("users-%s.json", time.Now().UTC().Format("2006-01-02")),
		Caption:  fmt.Sprintf("👥 %d registered user(s)", len(all)),
	}
	return c.Send(doc)
}
