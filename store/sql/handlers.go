package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// stringIDHandlers builds repository handlers for records keyed by a text id
// column holding a uuid.
func stringIDHandlers[T any](newRecord func() *T, idOf func(*T) *string) repository.ModelHandlers[*T] {
	return repository.ModelHandlers[*T]{
		NewRecord: newRecord,
		GetID: func(record *T) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(*idOf(record))
		},
		SetID: func(record *T, id uuid.UUID) {
			if record == nil {
				return
			}
			*idOf(record) = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *T) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(*idOf(record))
		},
	}
}

func shopTokenHandlers() repository.ModelHandlers[*shopTokenRecord] {
	return stringIDHandlers(
		func() *shopTokenRecord { return &shopTokenRecord{} },
		func(record *shopTokenRecord) *string { return &record.ID },
	)
}

func syncQueueHandlers() repository.ModelHandlers[*syncQueueRecord] {
	return stringIDHandlers(
		func() *syncQueueRecord { return &syncQueueRecord{} },
		func(record *syncQueueRecord) *string { return &record.ID },
	)
}

func webhookLogHandlers() repository.ModelHandlers[*webhookLogRecord] {
	return stringIDHandlers(
		func() *webhookLogRecord { return &webhookLogRecord{} },
		func(record *webhookLogRecord) *string { return &record.ID },
	)
}

func syncCursorHandlers() repository.ModelHandlers[*syncCursorRecord] {
	return stringIDHandlers(
		func() *syncCursorRecord { return &syncCursorRecord{} },
		func(record *syncCursorRecord) *string { return &record.ID },
	)
}

func rateLimitStateHandlers() repository.ModelHandlers[*rateLimitStateRecord] {
	return stringIDHandlers(
		func() *rateLimitStateRecord { return &rateLimitStateRecord{} },
		func(record *rateLimitStateRecord) *string { return &record.ID },
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func newRepository[T any](db *bun.DB, handlers repository.ModelHandlers[*T], name string) (repository.Repository[*T], error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*T](db, handlers)
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
		}
	}
	return repo, nil
}
