package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-marketsync/core"
)

func TestLoadSyncCursorMessage_ValidateReturnsRichError(t *testing.T) {
	err := (LoadSyncCursorMessage{ShopID: 55}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ErrorBadInput, rich.TextCode)
	}
}

func TestQueries_NilReadersReturnRichError(t *testing.T) {
	var cursorQuery *LoadSyncCursorQuery
	_, err := cursorQuery.Query(context.Background(), LoadSyncCursorMessage{ShopID: 55, Kind: core.SyncKindOrders})
	assertInternal(t, err)

	_, err = NewListShopsQuery(nil, 0).Query(context.Background(), ListShopsMessage{})
	assertInternal(t, err)
}

func assertInternal(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected dependency error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
