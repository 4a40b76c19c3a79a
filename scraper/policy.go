package scraper

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// BlockedError indicates an HTTP status the site uses to throttle or block
// scrapers (403, 429, 503). The session cookies are discarded before the
// next attempt.
type BlockedError struct {
	URL        string
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("HTTP %d (blocked): %s", e.StatusCode, e.URL)
}

// IsBlocked checks if an error is a blocking-status error.
func IsBlocked(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked)
}

// errCookieConflict marks a response whose Set-Cookie headers carry
// duplicate names. The jar is cleared and the attempt repeated without a
// backoff wait.
var errCookieConflict = errors.New("cookie jar conflict: duplicate cookie names in response")

// Policy is the consolidated retry policy for one fetch: attempt bound plus
// the per-error-class delay rules. A zero PreRequestMax disables the
// pre-request jitter, which keeps tests fast.
type Policy struct {
	Attempts      uint          // total attempts per fetch
	BlockBase     time.Duration // exponential base for blocking statuses
	BlockJitter   time.Duration // random extra on top of the block backoff
	SlowMin       time.Duration // lower bound for other transport errors
	SlowMax       time.Duration // upper bound for other transport errors
	PreRequestMax time.Duration // upper bound of the pre-request jitter
	Timeout       time.Duration // per-request HTTP timeout
}

// DefaultPolicy matches the pacing the site tolerates in practice.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:      3,
		BlockBase:     5 * time.Second,
		BlockJitter:   2 * time.Second,
		SlowMin:       2 * time.Second,
		SlowMax:       5 * time.Second,
		PreRequestMax: 1500 * time.Millisecond,
		Timeout:       30 * time.Second,
	}
}

// delay picks the wait before retrying attempt n (zero-based) that failed
// with err.
func (p Policy) delay(n uint, err error) time.Duration {
	switch {
	case errors.Is(err, errCookieConflict):
		// Jar already cleared; retry immediately.
		return 0
	case IsBlocked(err):
		d := p.BlockBase * time.Duration(n+1)
		if p.BlockJitter > 0 {
			d += rand.N(p.BlockJitter)
		}
		return d
	default:
		if p.SlowMax <= p.SlowMin {
			return p.SlowMin
		}
		return p.SlowMin + rand.N(p.SlowMax-p.SlowMin)
	}
}

// preDelay returns the randomized pause before a request goes out, breaking
// the fixed-interval fingerprint of the poll loop.
func (p Policy) preDelay() time.Duration {
	if p.PreRequestMax <= 0 {
		return 0
	}
	return rand.N(p.PreRequestMax)
}
