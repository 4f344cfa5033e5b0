package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultShopLockTTL = 30 * time.Second

// WithShopLock runs fn while holding the per-shop lock.
func WithShopLock(
	ctx context.Context,
	locker ShopLocker,
	shopID int64,
	ttl time.Duration,
	fn func(ctx context.Context) error,
) error {
	if fn == nil {
		return fmt.Errorf("core: shop lock callback is required")
	}
	if locker == nil {
		return fn(ctx)
	}
	handle, err := locker.Acquire(ctx, shopID, ttl)
	if err != nil {
		return err
	}
	defer func() {
		_ = handle.Unlock(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// MemoryShopLocker is an in-process mutex map keyed by shop. It only
// serializes callers inside one process; multi-instance deployments need a
// distributed lock such as the postgres advisory locker in store/sql.
type MemoryShopLocker struct {
	mu    sync.Mutex
	held  map[int64]*memoryShopLock
	nowFn func() time.Time
}

type memoryShopLock struct {
	released  chan struct{}
	expiresAt time.Time
	once      sync.Once
}

func (l *memoryShopLock) release() {
	l.once.Do(func() { close(l.released) })
}

func NewMemoryShopLocker() *MemoryShopLocker {
	return &MemoryShopLocker{
		held:  map[int64]*memoryShopLock{},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryShopLocker) Acquire(ctx context.Context, shopID int64, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: shop locker is not configured")
	}
	if shopID <= 0 {
		return nil, fmt.Errorf("core: shop id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultShopLockTTL
	}

	for {
		l.mu.Lock()
		now := l.nowFn()
		current, held := l.held[shopID]
		if !held || !now.Before(current.expiresAt) {
			if held {
				// lapsed holder; its Unlock becomes a no-op
				current.release()
			}
			lock := &memoryShopLock{released: make(chan struct{}), expiresAt: now.Add(ttl)}
			l.held[shopID] = lock
			l.mu.Unlock()
			return &memoryShopLockHandle{locker: l, shopID: shopID, lock: lock}, nil
		}
		released := current.released
		remaining := current.expiresAt.Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("core: waiting for shop %d lock: %w", shopID, ctx.Err())
		case <-released:
		case <-timer.C:
		}
		timer.Stop()
	}
}

type memoryShopLockHandle struct {
	locker *MemoryShopLocker
	shopID int64
	lock   *memoryShopLock
}

func (h *memoryShopLockHandle) Unlock(context.Context) error {
	if h == nil || h.locker == nil || h.lock == nil {
		return nil
	}
	h.locker.mu.Lock()
	if current, ok := h.locker.held[h.shopID]; ok && current == h.lock {
		delete(h.locker.held, h.shopID)
	}
	h.locker.mu.Unlock()
	h.lock.release()
	return nil
}

var _ ShopLocker = (*MemoryShopLocker)(nil)
