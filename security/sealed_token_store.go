package security

import (
	"context"
	"fmt"

	"github.com/goliatone/go-marketsync/core"
)

// SealedTokenStore encrypts access and refresh tokens before they reach the
// base store and opens them on read. Rows written before encryption was
// enabled are returned as stored and sealed on their next Put.
type SealedTokenStore struct {
	base    core.TokenStore
	secrets core.SecretProvider
}

func NewSealedTokenStore(base core.TokenStore, secrets core.SecretProvider) (*SealedTokenStore, error) {
	if base == nil {
		return nil, fmt.Errorf("security: base token store is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("security: secret provider is required")
	}
	return &SealedTokenStore{base: base, secrets: secrets}, nil
}

func (s *SealedTokenStore) Get(ctx context.Context, shopID int64) (*core.TokenRecord, error) {
	record, err := s.base.Get(ctx, shopID)
	if err != nil || record == nil {
		return record, err
	}
	opened, err := s.open(ctx, *record)
	if err != nil {
		return nil, err
	}
	return &opened, nil
}

func (s *SealedTokenStore) Put(ctx context.Context, shopID int64, record core.TokenRecord) error {
	sealed := record
	var err error
	if sealed.AccessToken, err = s.seal(ctx, record.AccessToken); err != nil {
		return err
	}
	if sealed.RefreshToken, err = s.seal(ctx, record.RefreshToken); err != nil {
		return err
	}
	return s.base.Put(ctx, shopID, sealed)
}

func (s *SealedTokenStore) List(ctx context.Context) ([]core.TokenRecord, error) {
	records, err := s.base.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.TokenRecord, 0, len(records))
	for _, record := range records {
		opened, err := s.open(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (s *SealedTokenStore) seal(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(value))
	if err != nil {
		return "", core.WrapError(err, core.ErrorInternal, "security: sealing token failed", nil)
	}
	return string(sealed), nil
}

func (s *SealedTokenStore) open(ctx context.Context, record core.TokenRecord) (core.TokenRecord, error) {
	var err error
	if record.AccessToken, err = s.openValue(ctx, record.ShopID, record.AccessToken); err != nil {
		return core.TokenRecord{}, err
	}
	if record.RefreshToken, err = s.openValue(ctx, record.ShopID, record.RefreshToken); err != nil {
		return core.TokenRecord{}, err
	}
	return record, nil
}

func (s *SealedTokenStore) openValue(ctx context.Context, shopID int64, value string) (string, error) {
	if !IsSealed([]byte(value)) {
		return value, nil
	}
	plaintext, err := s.secrets.Decrypt(ctx, []byte(value))
	if err != nil {
		return "", core.WrapError(err, core.ErrorInternal, "security: opening token failed", map[string]any{"shop_id": shopID})
	}
	return string(plaintext), nil
}

var _ core.TokenStore = (*SealedTokenStore)(nil)
