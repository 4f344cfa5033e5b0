package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	advisoryLockNamespace    int32 = 0x53485045
	defaultAdvisoryPollDelay       = 100 * time.Millisecond
)

// AdvisoryShopLocker serializes token refreshes across processes with
// postgres session advisory locks. Each held lock pins one pooled connection
// until Unlock. A crashed holder releases its lock when its session ends, so
// ttl only bounds how long Acquire waits.
type AdvisoryShopLocker struct {
	db        *bun.DB
	PollDelay time.Duration
}

func NewAdvisoryShopLocker(db *bun.DB) (*AdvisoryShopLocker, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if db.Dialect().Name() != dialect.PG {
		return nil, fmt.Errorf("sqlstore: advisory locks require postgres, got %s", db.Dialect().Name())
	}
	return &AdvisoryShopLocker{db: db, PollDelay: defaultAdvisoryPollDelay}, nil
}

func (l *AdvisoryShopLocker) Acquire(ctx context.Context, shopID int64, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("sqlstore: advisory locker is not configured")
	}
	if shopID <= 0 {
		return nil, fmt.Errorf("sqlstore: shop id is required for lock acquisition")
	}
	waitCtx := ctx
	if ttl > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, ttl)
		defer cancel()
	}

	conn, err := l.db.Conn(waitCtx)
	if err != nil {
		return nil, err
	}
	delay := l.PollDelay
	if delay <= 0 {
		delay = defaultAdvisoryPollDelay
	}
	key := int32(shopID)
	for {
		var acquired bool
		err := conn.QueryRowContext(waitCtx, "SELECT pg_try_advisory_lock(?, ?)", advisoryLockNamespace, key).Scan(&acquired)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqlstore: advisory lock for shop %d: %w", shopID, err)
		}
		if acquired {
			return &advisoryLockHandle{conn: conn, key: key}, nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			_ = conn.Close()
			return nil, fmt.Errorf("sqlstore: waiting for shop %d lock: %w", shopID, waitCtx.Err())
		case <-timer.C:
		}
	}
}

type advisoryLockHandle struct {
	once sync.Once
	conn bun.Conn
	key  int32
	err  error
}

func (h *advisoryLockHandle) Unlock(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		var released sql.NullBool
		err := h.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock(?, ?)", advisoryLockNamespace, h.key).Scan(&released)
		closeErr := h.conn.Close()
		if err != nil {
			h.err = err
			return
		}
		h.err = closeErr
	})
	return h.err
}
