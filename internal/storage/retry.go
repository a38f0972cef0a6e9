package storage

import (
	"context"
	"fmt"
	"time"
)

// maxTransientRetries bounds how many times a transient backend error is
// retried before it surfaces to the caller as an internal error.
const maxTransientRetries = 3

// retryDelay is the pause between attempts. It is intentionally short: the
// backends this wraps are a local filesystem or a database connection pool,
// neither of which benefits from a long backoff for a transient hiccup.
const retryDelay = 20 * time.Millisecond

// WithRetry wraps inner so every operation is retried up to
// maxTransientRetries times on error before giving up.
func WithRetry(inner Store) Store {
	return &retryingStore{inner: inner}
}

type retryingStore struct {
	inner Store
}

func retry[T any](fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt < maxTransientRetries {
			time.Sleep(retryDelay)
		}
	}
	return zero, fmt.Errorf("storage: giving up after %d attempts: %w", maxTransientRetries+1, lastErr)
}

func retryErrOnly(fn func() error) error {
	_, err := retry(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (r *retryingStore) Open(ctx context.Context) error {
	return retryErrOnly(func() error { return r.inner.Open(ctx) })
}

func (r *retryingStore) GetResource(ctx context.Context, name string) ([]byte, bool, error) {
	type result struct {
		value []byte
		ok    bool
	}
	res, err := retry(func() (result, error) {
		v, ok, err := r.inner.GetResource(ctx, name)
		return result{v, ok}, err
	})
	return res.value, res.ok, err
}

func (r *retryingStore) SetResource(ctx context.Context, name string, value []byte) error {
	return retryErrOnly(func() error { return r.inner.SetResource(ctx, name, value) })
}

func (r *retryingStore) ExistsResource(ctx context.Context, name string) (bool, error) {
	return retry(func() (bool, error) { return r.inner.ExistsResource(ctx, name) })
}

func (r *retryingStore) GetKey(ctx context.Context, collection, key string) ([]byte, bool, error) {
	type result struct {
		value []byte
		ok    bool
	}
	res, err := retry(func() (result, error) {
		v, ok, err := r.inner.GetKey(ctx, collection, key)
		return result{v, ok}, err
	})
	return res.value, res.ok, err
}

func (r *retryingStore) SetKey(ctx context.Context, collection, key string, value []byte) error {
	return retryErrOnly(func() error { return r.inner.SetKey(ctx, collection, key, value) })
}

func (r *retryingStore) DeleteKey(ctx context.Context, collection, key string) (bool, error) {
	return retry(func() (bool, error) { return r.inner.DeleteKey(ctx, collection, key) })
}

func (r *retryingStore) ExistsKey(ctx context.Context, collection, key string) (bool, error) {
	return retry(func() (bool, error) { return r.inner.ExistsKey(ctx, collection, key) })
}

func (r *retryingStore) Close() error {
	return r.inner.Close()
}
