package scraper

import (
	"errors"
	"testing"
	"time"
)

func TestDelayForCookieConflict(t *testing.T) {
	p := DefaultPolicy()
	if d := p.delay(0, errCookieConflict); d != 0 {
		t.Errorf("got %s, want 0 for cookie conflict", d)
	}
}

func TestDelayForBlockingStatusGrowsPerAttempt(t *testing.T) {
	p := Policy{BlockBase: 5 * time.Second} // no jitter, deterministic
	err := &BlockedError{URL: "u", StatusCode: 429}

	for n := uint(0); n < 3; n++ {
		want := p.BlockBase * time.Duration(n+1)
		if d := p.delay(n, err); d != want {
			t.Errorf("attempt %d: got %s, want %s", n, d, want)
		}
	}
}

func TestDelayForBlockingStatusJitterBounded(t *testing.T) {
	p := Policy{BlockBase: 5 * time.Second, BlockJitter: 2 * time.Second}
	err := &BlockedError{URL: "u", StatusCode: 503}

	for range 50 {
		d := p.delay(0, err)
		if d < 5*time.Second || d >= 7*time.Second {
			t.Fatalf("got %s, want within [5s, 7s)", d)
		}
	}
}

func TestDelayForOtherErrorsWithinSlowWindow(t *testing.T) {
	p := Policy{SlowMin: 2 * time.Second, SlowMax: 5 * time.Second}

	for range 50 {
		d := p.delay(0, errors.New("connection reset"))
		if d < 2*time.Second || d >= 5*time.Second {
			t.Fatalf("got %s, want within [2s, 5s)", d)
		}
	}
}

func TestDelayDegenerateSlowWindow(t *testing.T) {
	p := Policy{SlowMin: time.Second, SlowMax: time.Second}
	if d := p.delay(0, errors.New("x")); d != time.Second {
		t.Errorf("got %s, want 1s", d)
	}
}

func TestPreDelayDisabled(t *testing.T) {
	var p Policy
	if d := p.preDelay(); d != 0 {
		t.Errorf("got %s, want 0 when disabled", d)
	}
}

func TestPreDelayBounded(t *testing.T) {
	p := Policy{PreRequestMax: 100 * time.Millisecond}
	for range 50 {
		d := p.preDelay()
		if d < 0 || d >= p.PreRequestMax {
			t.Fatalf("got %s, want within [0, %s)", d, p.PreRequestMax)
		}
	}
}

func TestIsBlocked(t *testing.T) {
	if !IsBlocked(&BlockedError{URL: "u", StatusCode: 403}) {
		t.Error("BlockedError not recognized")
	}
	if IsBlocked(errors.New("plain")) {
		t.Error("plain error recognized as blocked")
	}
}
