// Package poll drives the monitoring loop: fetch each target, diff the
// observation against the persisted fact, push a notification per change.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"platinmods-notifier/pkg/notifier"
	"platinmods-notifier/state"
)

// Session is one transport session against the site. The scheduled loop
// keeps a single session across passes; every manual check gets a fresh one.
type Session interface {
	Presence(ctx context.Context, url string) (bool, error)
	Threads(ctx context.Context, url string) ([]notifier.ThreadRecord, error)
}

// SessionFactory builds a new transport session.
type SessionFactory func() (Session, error)

// Store persists the last successfully observed fact per target.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Notifier delivers rendered transition events. Delivery failures are the
// notifier's problem to report; they never roll back a state update.
type Notifier interface {
	Event(ctx context.Context, ev notifier.Event) error
	Announce(ctx context.Context, text string) error
}

// Config wires a Monitor.
type Config struct {
	Sessions SessionFactory
	Store    Store
	Notifier Notifier
	Presence []notifier.Target
	Forums   []notifier.Target
	Interval time.Duration
	Logger   *slog.Logger
}

// Monitor runs the scheduled polling loop and serves manual passes.
type Monitor struct {
	sessions SessionFactory
	store    Store
	notify   Notifier
	presence []notifier.Target
	forums   []notifier.Target
	interval time.Duration
	logger   *slog.Logger

	// announced gates the one-shot startup message; owned by Run.
	announced bool
}

// New creates a monitor. The target order is the configured order and fixed
// for the life of the process.
func New(cfg Config) *Monitor {
	return &Monitor{
		sessions: cfg.Sessions,
		store:    cfg.Store,
		notify:   cfg.Notifier,
		presence: cfg.Presence,
		forums:   cfg.Forums,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}
}

// Run drives passes forever, sleeping the configured interval between them.
// Passes never overlap; the only unbounded wait is the inter-pass sleep,
// which the context cancels. Returns the context error on shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.announced {
		m.announced = true
		text := fmt.Sprintf("Tracker online. Watching %d member(s) and %d forum(s), checking every %s.",
			len(m.presence), len(m.forums), m.interval)
		if err := m.notify.Announce(ctx, text); err != nil {
			m.logger.Warn("Startup announcement failed", "error", err)
		}
	}

	sess, err := m.sessions()
	if err != nil {
		return fmt.Errorf("create transport session: %w", err)
	}

	for {
		start := time.Now()
		summary := m.pass(ctx, sess)
		m.logger.Info("Pass completed",
			"users", len(summary.Users),
			"forums", len(summary.Forums),
			"duration_ms", time.Since(start).Milliseconds())

		timer := time.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("Scheduler stopping", "error", ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce performs a single out-of-band pass with its own transport
// session. It runs concurrently with the scheduled loop and does not delay
// or reset its cadence; concurrent writers of the same state key are
// last-writer-wins by design.
func (m *Monitor) RunOnce(ctx context.Context) (notifier.Summary, error) {
	sess, err := m.sessions()
	if err != nil {
		return notifier.Summary{}, fmt.Errorf("create transport session: %w", err)
	}
	m.logger.Info("Manual pass started")
	return m.pass(ctx, sess), nil
}

// pass sweeps all targets sequentially: presence targets first, then
// forums, in configured order. Per-target failures are contained; the pass
// always completes.
func (m *Monitor) pass(ctx context.Context, sess Session) notifier.Summary {
	summary := notifier.NewSummary()

	for _, target := range m.presence {
		if ctx.Err() != nil {
			return summary
		}
		summary.Users[target.Name] = m.checkPresence(ctx, sess, target)
	}

	for _, target := range m.forums {
		if ctx.Err() != nil {
			return summary
		}
		summary.Forums[target.Name] = m.checkForum(ctx, sess, target)
	}

	return summary
}

// checkPresence observes one member profile and emits at most one
// transition event. A fetch/extract failure leaves the persisted fact
// untouched and reports Error; the observation itself (true or false) is
// always a confident fact.
func (m *Monitor) checkPresence(ctx context.Context, sess Session, target notifier.Target) notifier.PresenceStatus {
	online, err := sess.Presence(ctx, target.URL)
	if err != nil {
		m.logger.Warn("Presence check failed", "target", target.Name, "url", target.URL, "error", err)
		return notifier.StatusError
	}

	status := notifier.StatusOffline
	if online {
		status = notifier.StatusOnline
	}

	key := target.StateKey()
	prev, err := m.store.Get(ctx, key)
	if err != nil && !errors.Is(err, state.ErrNotExist) {
		m.logger.Error("State read failed, skipping diff", "target", target.Name, "error", err)
		return status
	}

	firstObservation := errors.Is(err, state.ErrNotExist)
	var was bool
	if !firstObservation {
		was, err = decodePresence(prev)
		if err != nil {
			// Corrupt fact: reseed silently rather than invent a transition.
			m.logger.Warn("Corrupt presence state, reseeding", "target", target.Name, "error", err)
			firstObservation = true
		}
	}

	data, err := encodePresence(online)
	if err != nil {
		m.logger.Error("Encode presence fact failed", "target", target.Name, "error", err)
		return status
	}
	if err := m.store.Set(ctx, key, data); err != nil {
		// The transition (if any) is lost for notification purposes this
		// cycle; notifying without persisting would duplicate it next cycle.
		m.logger.Error("State write failed", "target", target.Name, "error", err)
		return status
	}

	if firstObservation {
		m.logger.Info("Seeded presence state", "target", target.Name, "online", online)
		return status
	}

	for _, ev := range diffPresence(target, was, online) {
		if err := m.notify.Event(ctx, ev); err != nil {
			m.logger.Warn("Notification failed", "target", target.Name, "error", err)
		}
	}
	return status
}

// checkForum observes one forum listing and emits one event per appeared or
// disappeared thread, comparing by URL identity only.
func (m *Monitor) checkForum(ctx context.Context, sess Session, target notifier.Target) notifier.ForumResult {
	threads, err := sess.Threads(ctx, target.URL)
	if err != nil {
		m.logger.Warn("Forum check failed", "target", target.Name, "url", target.URL, "error", err)
		return notifier.ForumResult{Failed: true}
	}

	result := notifier.ForumResult{Count: len(threads)}

	key := target.StateKey()
	prev, err := m.store.Get(ctx, key)
	if err != nil && !errors.Is(err, state.ErrNotExist) {
		m.logger.Error("State read failed, skipping diff", "target", target.Name, "error", err)
		return result
	}

	firstObservation := errors.Is(err, state.ErrNotExist)
	var old []notifier.ThreadRecord
	if !firstObservation {
		old, err = decodeThreads(prev)
		if err != nil {
			m.logger.Warn("Corrupt forum state, reseeding", "target", target.Name, "error", err)
			firstObservation = true
		}
	}

	data, err := encodeThreads(threads)
	if err != nil {
		m.logger.Error("Encode thread fact failed", "target", target.Name, "error", err)
		return result
	}
	if err := m.store.Set(ctx, key, data); err != nil {
		m.logger.Error("State write failed", "target", target.Name, "error", err)
		return result
	}

	if firstObservation {
		m.logger.Info("Seeded forum state", "target", target.Name, "threads", len(threads))
		return result
	}

	for _, ev := range diffThreads(target, old, threads) {
		if err := m.notify.Event(ctx, ev); err != nil {
			m.logger.Warn("Notification failed", "target", target.Name, "thread", ev.Thread.URL, "error", err)
		}
	}
	return result
}
