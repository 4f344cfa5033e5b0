package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
)

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*core.SyncQueueItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]*core.SyncQueueItem{}}
}

func (s *MemoryStore) Enqueue(_ context.Context, item core.SyncQueueItem) (core.SyncQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(item.ID) == "" {
		item.ID = uuid.NewString()
	}
	if _, exists := s.items[item.ID]; exists {
		return core.SyncQueueItem{}, fmt.Errorf("queue: item %s already exists", item.ID)
	}
	item.Payload = clonePayload(item.Payload)
	stored := item
	s.items[item.ID] = &stored
	return item, nil
}

func (s *MemoryStore) ClaimBatch(_ context.Context, now time.Time, limit int) ([]core.SyncQueueItem, error) {
	if limit <= 0 {
		limit = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]*core.SyncQueueItem, 0, len(s.items))
	for _, item := range s.items {
		if item.Status != core.QueueStatusPending && item.Status != core.QueueStatusRetry {
			continue
		}
		if item.ScheduledAt.After(now) {
			continue
		}
		due = append(due, item)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]core.SyncQueueItem, 0, len(due))
	for _, item := range due {
		item.Status = core.QueueStatusProcessing
		item.UpdatedAt = now
		claimed := *item
		claimed.Payload = clonePayload(item.Payload)
		out = append(out, claimed)
	}
	return out, nil
}

func (s *MemoryStore) MarkSuccess(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(item *core.SyncQueueItem) {
		item.Status = core.QueueStatusSuccess
		item.ErrorMessage = ""
		processed := at
		item.ProcessedAt = &processed
		item.UpdatedAt = at
	})
}

func (s *MemoryStore) MarkRetry(_ context.Context, id string, retryCount int, scheduledAt time.Time, message string) error {
	return s.update(id, func(item *core.SyncQueueItem) {
		item.Status = core.QueueStatusRetry
		item.RetryCount = retryCount
		item.ScheduledAt = scheduledAt
		item.ErrorMessage = message
	})
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string, retryCount int, message string, at time.Time) error {
	return s.update(id, func(item *core.SyncQueueItem) {
		item.Status = core.QueueStatusFailed
		item.RetryCount = retryCount
		item.ErrorMessage = message
		processed := at
		item.ProcessedAt = &processed
		item.UpdatedAt = at
	})
}

func (s *MemoryStore) Get(_ context.Context, id string) (core.SyncQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[strings.TrimSpace(id)]
	if !ok {
		return core.SyncQueueItem{}, ErrItemNotFound
	}
	out := *item
	out.Payload = clonePayload(item.Payload)
	return out, nil
}

func (s *MemoryStore) update(id string, fn func(item *core.SyncQueueItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[strings.TrimSpace(id)]
	if !ok {
		return ErrItemNotFound
	}
	fn(item)
	return nil
}

func clonePayload(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
