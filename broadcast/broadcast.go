// Package broadcast delivers one message to every registered user, pacing
// sends below Telegram's flood limits and pruning dead recipients.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"platinmods-notifier/users"
)

// ErrRecipientGone marks a recipient who blocked the bot or deactivated the
// account. The engine removes such users from the registry and moves on.
var ErrRecipientGone = errors.New("broadcast: recipient blocked or deactivated")

// RetryAfterError carries the server-mandated wait before the same
// recipient may be retried (Telegram flood control).
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("broadcast: flood control, retry after %s", e.After)
}

// SendFunc delivers the broadcast payload to one user. Implementations
// translate transport errors into ErrRecipientGone / RetryAfterError where
// they apply.
type SendFunc func(ctx context.Context, userID int64) error

// Registry is the user list the broadcast iterates.
type Registry interface {
	All(ctx context.Context) ([]users.User, error)
	Delete(ctx context.Context, id int64) error
}

// Report summarizes one broadcast run.
type Report struct {
	Total     int
	Done      int
	Succeeded int
	Blocked   int
	Failed    int
	Elapsed   time.Duration
}

const (
	// floodRetries bounds how often a single recipient is retried after
	// flood-control waits before counting as failed.
	floodRetries = 3
	// progressEvery is how many completed sends go between progress calls.
	progressEvery = 20
)

// Engine runs broadcasts against a registry.
type Engine struct {
	registry Registry
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates an engine pacing sends at perSecond messages per second.
func New(registry Registry, perSecond float64, logger *slog.Logger) *Engine {
	if perSecond <= 0 {
		perSecond = 20 // Telegram bot API tolerates ~30/s; stay below
	}
	return &Engine{
		registry: registry,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
		logger:   logger,
	}
}

// Run sends to every registered user sequentially. progress, if non-nil, is
// called every few completions with a running report. The final report is
// always returned, even when the context ends the run early.
func (e *Engine) Run(ctx context.Context, send SendFunc, progress func(Report)) (Report, error) {
	start := time.Now()

	recipients, err := e.registry.All(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list recipients: %w", err)
	}

	report := Report{Total: len(recipients)}
	e.logger.Info("Broadcast started", "recipients", report.Total)

	for _, u := range recipients {
		if ctx.Err() != nil {
			break
		}
		if err := e.limiter.Wait(ctx); err != nil {
			break
		}

		switch err := e.sendOne(ctx, send, u.ID); {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, ErrRecipientGone):
			if delErr := e.registry.Delete(ctx, u.ID); delErr != nil {
				e.logger.Warn("Failed to prune recipient", "user_id", u.ID, "error", delErr)
			}
			report.Blocked++
		default:
			e.logger.Warn("Broadcast send failed", "user_id", u.ID, "error", err)
			report.Failed++
		}

		report.Done++
		report.Elapsed = time.Since(start)
		if progress != nil && report.Done%progressEvery == 0 {
			progress(report)
		}
	}

	report.Elapsed = time.Since(start)
	if report.Failed > 0 || report.Blocked > 0 {
		e.logger.Warn("Broadcast finished with failures",
			"total", report.Total, "succeeded", report.Succeeded,
			"blocked", report.Blocked, "failed", report.Failed,
			"duration_ms", report.Elapsed.Milliseconds())
	} else {
		e.logger.Info("Broadcast finished",
			"total", report.Total, "succeeded", report.Succeeded,
			"duration_ms", report.Elapsed.Milliseconds())
	}
	return report, ctx.Err()
}

// sendOne delivers to a single recipient, honoring flood-control waits a
// bounded number of times.
func (e *Engine) sendOne(ctx context.Context, send SendFunc, userID int64) error {
	var last error
	for attempt := 0; attempt <= floodRetries; attempt++ {
		err := send(ctx, userID)
		if err == nil {
			return nil
		}
		last = err

		var flood *RetryAfterError
		if !errors.As(err, &flood) {
			return err
		}

		e.logger.Warn("Flood control hit, waiting", "user_id", userID, "wait", flood.After, "attempt", attempt+1)
		timer := time.NewTimer(flood.After)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return last
}
