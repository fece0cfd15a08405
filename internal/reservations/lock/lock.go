package lock

import (
	"context"
	"fmt"
	"time"

	reservationserrors "reservo/internal/reservations/errors"
	"reservo/pkg/logger"

	"github.com/google/uuid"
)

const keyPrefix = "reservation_lock"

// Store is the atomic primitive behind the coordinator. SetIfAbsent returns
// false without error when key is already held. CompareAndDelete removes key
// only while it still holds token.
type Store interface {
	SetIfAbsent(ctx context.Context, key, token string, lease time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, token string) error
}

type Config struct {
	Lease          time.Duration
	ReleaseTimeout time.Duration
}

// Coordinator hands out short-lived per-slot locks. It never waits for a held
// lock and fails closed when the store errors.
type Coordinator struct {
	store  Store
	cfg    Config
	log    *logger.Logger
	newTok func() string
}

func NewCoordinator(store Store, cfg Config, log *logger.Logger) *Coordinator {
	if cfg.Lease <= 0 {
		cfg.Lease = 10 * time.Second
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 2 * time.Second
	}
	return &Coordinator{
		store:  store,
		cfg:    cfg,
		log:    log.Component("lock"),
		newTok: uuid.NewString,
	}
}

// SlotKey identifies the lock for a room slot.
func SlotKey(roomID string, start time.Time) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, roomID, start.Unix())
}

// TryAcquire takes key for lease and returns the owner token. A zero lease uses
// the configured default.
func (c *Coordinator) TryAcquire(ctx context.Context, key string, lease time.Duration) (string, error) {
	if lease <= 0 {
		lease = c.cfg.Lease
	}
	token := c.newTok()

	ok, err := c.store.SetIfAbsent(ctx, key, token, lease)
	if err != nil {
		c.log.Error("Lock store error on acquire", "key", key, "error", err)
		return "", fmt.Errorf("%w: %v", reservationserrors.ErrLockUnavailable, err)
	}
	if !ok {
		return "", reservationserrors.ErrLockHeld
	}
	return token, nil
}

// Release frees key if token still owns it. A lapsed or stolen lease is not an error.
func (c *Coordinator) Release(ctx context.Context, key, token string) error {
	if err := c.store.CompareAndDelete(ctx, key, token); err != nil {
		return fmt.Errorf("%w: %v", reservationserrors.ErrLockUnavailable, err)
	}
	return nil
}

// WithLock runs fn while holding key. The lock is released on every exit path,
// including a panic in fn, using a context that outlives request cancellation.
func (c *Coordinator) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := c.TryAcquire(ctx, key, 0)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ReleaseTimeout)
		defer cancel()
		if err := c.Release(releaseCtx, key, token); err != nil {
			c.log.Warn("Failed to release slot lock", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}
