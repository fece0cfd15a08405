package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
}

func TestBackoffPolicy_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	notified := 0
	err := fastPolicy().Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(error, time.Duration) { notified++ })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if notified != 2 {
		t.Errorf("notified = %d, want 2", notified)
	}
}

func TestBackoffPolicy_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad credentials")
	attempts := 0
	err := fastPolicy().Retry(context.Background(), func() error {
		attempts++
		return Permanent(sentinel)
	}, nil)

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestBackoffPolicy_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := fastPolicy()
	policy.MaxElapsedTime = 0
	err := policy.Retry(ctx, func() error { return errors.New("down") }, nil)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}
