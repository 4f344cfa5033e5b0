package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
)

// LogStore is the append-only webhook log. Complete only sets the terminal
// status of an entry.
type LogStore interface {
	Append(ctx context.Context, entry core.WebhookLogEntry) (core.WebhookLogEntry, error)
	Complete(ctx context.Context, id string, status core.WebhookStatus, message string, at time.Time) error
	// ProcessedDigest reports whether a payload with digest was already
	// applied successfully.
	ProcessedDigest(ctx context.Context, digest string) (bool, error)
}

type MemoryLog struct {
	mu      sync.Mutex
	entries []core.WebhookLogEntry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, entry core.WebhookLogEntry) (core.WebhookLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *MemoryLog) Complete(_ context.Context, id string, status core.WebhookStatus, message string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for index := range l.entries {
		if l.entries[index].ID != id {
			continue
		}
		if l.entries[index].CompletedAt != nil {
			return fmt.Errorf("webhooks: log entry %s already completed", id)
		}
		completed := at
		l.entries[index].Status = status
		l.entries[index].Error = message
		l.entries[index].CompletedAt = &completed
		return nil
	}
	return fmt.Errorf("webhooks: log entry %s not found", id)
}

func (l *MemoryLog) ProcessedDigest(_ context.Context, digest string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.Digest == digest && entry.Status == core.WebhookStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

// Recent returns the newest entries first. A zero shopID matches every shop.
func (l *MemoryLog) Recent(_ context.Context, shopID int64, limit int) ([]core.WebhookLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.WebhookLogEntry, 0, len(l.entries))
	for index := len(l.entries) - 1; index >= 0; index-- {
		entry := l.entries[index]
		if shopID > 0 && entry.ShopID != shopID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLog) Entries() []core.WebhookLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.WebhookLogEntry(nil), l.entries...)
}

var _ LogStore = (*MemoryLog)(nil)
