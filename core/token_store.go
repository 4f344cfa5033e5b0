package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// IsExpiring reports whether record is inside the safety margin at now. A
// token is valid only while now < expiresAt - margin.
func IsExpiring(record TokenRecord, margin time.Duration, now time.Time) bool {
	if record.ExpiresAt.IsZero() {
		return true
	}
	if margin < 0 {
		margin = 0
	}
	return !now.Before(record.ExpiresAt.Add(-margin))
}

// MemoryTokenStore keeps tokens in process memory. It is durable only for the
// lifetime of the process and suits tests and single-shot tools.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[int64]TokenRecord
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[int64]TokenRecord{}}
}

func (s *MemoryTokenStore) Get(_ context.Context, shopID int64) (*TokenRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("core: token store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.tokens[shopID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *MemoryTokenStore) Put(_ context.Context, shopID int64, record TokenRecord) error {
	if s == nil {
		return fmt.Errorf("core: token store is nil")
	}
	record.ShopID = shopID
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[shopID] = record
	return nil
}

func (s *MemoryTokenStore) List(_ context.Context) ([]TokenRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("core: token store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TokenRecord, 0, len(s.tokens))
	for _, record := range s.tokens {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShopID < out[j].ShopID })
	return out, nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
