package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying retries transient Put failures with exponential backoff. It never
// reports success before the wrapped store has acknowledged the write.
type Retrying struct {
	next        BlobStore
	maxAttempts uint64
	initial     time.Duration
}

func NewRetrying(next BlobStore, maxAttempts int, initial time.Duration) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	return &Retrying{next: next, maxAttempts: uint64(maxAttempts), initial: initial}
}

func (r *Retrying) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	var stored string
	op := func() error {
		p, err := r.next.Put(ctx, path, data, contentType)
		if err != nil {
			if errors.Is(err, ErrInvalidPath) {
				return backoff.Permanent(err)
			}
			return err
		}
		stored = p
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.maxAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return stored, nil
}

func (r *Retrying) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return r.next.SignedURL(ctx, path, ttl)
}
