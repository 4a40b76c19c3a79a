package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
)

// GCSStore keeps one object per key in a Cloud Storage bucket. Reads and
// writes are retried; "object doesn't exist" is not retried and surfaces as
// ErrNotExist.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewGCSStore wraps an existing storage client.
func NewGCSStore(client *storage.Client, bucket string, logger *slog.Logger) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, logger: logger}
}

// Get returns the stored value for key, or ErrNotExist.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	name := objectName(key)

	var data []byte
	var notExist bool
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					notExist = true
					return retry.Unrecoverable(ErrNotExist)
				}
				return fmt.Errorf("open state reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close state reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read state object: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying state read after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		if notExist {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("load state after retries: %w", err)
	}
	return data, nil
}

// Set writes the value for key.
func (s *GCSStore) Set(ctx context.Context, key string, value []byte) error {
	name := objectName(key)

	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
			if _, writeErr := w.Write(value); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write state object: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close state writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying state write after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save state after retries: %w", err)
	}
	s.logger.Debug("State saved", "key", key, "bytes", len(value))
	return nil
}

// Count reports how many state objects the bucket holds. Used by the
// liveness endpoint to show that storage is reachable.
func (s *GCSStore) Count(ctx context.Context) (int, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: "state-"})
	n := 0
	for {
		_, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("iterate state objects: %w", err)
		}
		n++
	}
	return n, nil
}
