package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"platinmods-notifier/users"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRegistry is an in-memory Registry for broadcast tests.
type fakeRegistry struct {
	users   []users.User
	deleted []int64
	listErr error
}

func (f *fakeRegistry) All(_ context.Context) ([]users.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.users, nil
}

func (f *fakeRegistry) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func makeUsers(n int) []users.User {
	out := make([]users.User, 0, n)
	for i := range n {
		out = append(out, users.User{ID: int64(i + 1), Name: fmt.Sprintf("u%d", i+1)})
	}
	return out
}

func TestRunDeliversToEveryone(t *testing.T) {
	reg := &fakeRegistry{users: makeUsers(5)}
	e := New(reg, 1000, testLogger())

	var sent []int64
	report, err := e.Run(context.Background(), func(_ context.Context, id int64) error {
		sent = append(sent, id)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Succeeded != 5 || report.Total != 5 || report.Failed != 0 {
		t.Errorf("report: got %+v", report)
	}
	if len(sent) != 5 {
		t.Errorf("sent to %d users, want 5", len(sent))
	}
}

func TestRunPrunesGoneRecipients(t *testing.T) {
	reg := &fakeRegistry{users: makeUsers(3)}
	e := New(reg, 1000, testLogger())

	report, err := e.Run(context.Background(), func(_ context.Context, id int64) error {
		if id == 2 {
			return fmt.Errorf("%w: blocked", ErrRecipientGone)
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Succeeded != 2 || report.Blocked != 1 {
		t.Errorf("report: got %+v", report)
	}
	if len(reg.deleted) != 1 || reg.deleted[0] != 2 {
		t.Errorf("deleted %v, want [2]", reg.deleted)
	}
}

func TestRunCountsFailures(t *testing.T) {
	reg := &fakeRegistry{users: makeUsers(3)}
	e := New(reg, 1000, testLogger())

	report, err := e.Run(context.Background(), func(_ context.Context, id int64) error {
		if id == 3 {
			return errors.New("network down")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 || report.Succeeded != 2 {
		t.Errorf("report: got %+v", report)
	}
	if len(reg.deleted) != 0 {
		t.Errorf("transient failure pruned users: %v", reg.deleted)
	}
}

func TestRunRetriesAfterFloodWait(t *testing.T) {
	reg := &fakeRegistry{users: makeUsers(1)}
	e := New(reg, 1000, testLogger())

	attempts := 0
	report, err := e.Run(context.Background(), func(_ context.Context, _ int64) error {
		attempts++
		if attempts == 1 {
			return &RetryAfterError{After: time.Millisecond}
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 2 {
		t.Errorf("got %d attempts, want 2", attempts)
	}
	if report.Succeeded != 1 {
		t.Errorf("report: got %+v", report)
	}
}

func TestRunBoundsFloodRetries(t *testing.T) {
	reg := &fakeRegistry{users: makeUsers(1)}
	e := New(reg, 1000, testLogger())

	attempts := 0
	report, err := e.Run(context.Background(), func(_ context.Context, _ int64) error {
		attempts++
		return &RetryAfterError{After: time.Millisecond}
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != floodRetries+1 {
		t.Errorf("got %d attempts, want %d", attempts, floodRetries+1)
	}
	if report.Failed != 1 {
		t.Errorf("report: got %+v", report)
	}
}

func TestRunReportsProgress(t *testing.T) {
	reg := &fakeRegistry{users: makeUsers(45)}
	e := New(reg, 10000, testLogger())

	var updates []Report
	report, err := e.Run(context.Background(), func(_ context.Context, _ int64) error {
		return nil
	}, func(r Report) {
		updates = append(updates, r)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d progress updates, want 2", len(updates))
	}
	if updates[0].Done != 20 || updates[1].Done != 40 {
		t.Errorf("progress marks: got %d and %d, want 20 and 40", updates[0].Done, updates[1].Done)
	}
	if report.Done != 45 {
		t.Errorf("final report: got %+v", report)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	reg := &fakeRegistry{users: makeUsers(100)}
	e := New(reg, 10000, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	sent := 0
	report, err := e.Run(ctx, func(_ context.Context, _ int64) error {
		sent++
		if sent == 10 {
			cancel()
		}
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if report.Done >= 100 {
		t.Errorf("cancelled run completed all sends: %+v", report)
	}
}

func TestRunListFailure(t *testing.T) {
	reg := &fakeRegistry{listErr: errors.New("db locked")}
	e := New(reg, 1000, testLogger())

	if _, err := e.Run(context.Background(), func(_ context.Context, _ int64) error {
		return nil
	}, nil); err == nil {
		t.Fatal("expected error when listing recipients fails")
	}
}
