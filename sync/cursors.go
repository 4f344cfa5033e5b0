package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-marketsync/core"
)

type cursorKey struct {
	shopID int64
	kind   core.SyncKind
}

// MemoryCursorStore keeps sync cursors in process memory.
type MemoryCursorStore struct {
	mu      sync.RWMutex
	cursors map[cursorKey]core.SyncCursor
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: map[cursorKey]core.SyncCursor{}}
}

func (s *MemoryCursorStore) Get(_ context.Context, shopID int64, kind core.SyncKind) (*core.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.cursors[cursorKey{shopID: shopID, kind: kind}]
	if !ok {
		return nil, nil
	}
	return &cursor, nil
}

func (s *MemoryCursorStore) Put(_ context.Context, cursor core.SyncCursor) error {
	if cursor.ShopID <= 0 || cursor.Kind == "" {
		return fmt.Errorf("sync: cursor needs shop id and kind")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursors == nil {
		s.cursors = map[cursorKey]core.SyncCursor{}
	}
	s.cursors[cursorKey{shopID: cursor.ShopID, kind: cursor.Kind}] = cursor
	return nil
}

var _ core.SyncCursorStore = (*MemoryCursorStore)(nil)
