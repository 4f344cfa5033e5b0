package shopee

import (
	"strings"

	"github.com/goliatone/go-marketsync/core"
)

// PushAuthorizationHeader carries the push signature.
const PushAuthorizationHeader = "Authorization"

// PushVerifier checks the HMAC-SHA256 signature of an inbound push against
// the raw request bytes. When CallbackURL is set the documented
// "<url>|<body>" base string is accepted as well.
type PushVerifier struct {
	PartnerKey  string
	CallbackURL string
	// KeyForShop overrides PartnerKey for shops provisioned under another
	// partner application.
	KeyForShop func(shopID int64) string
}

func (v PushVerifier) key(shopID int64) string {
	if v.KeyForShop != nil {
		if key := strings.TrimSpace(v.KeyForShop(shopID)); key != "" {
			return key
		}
	}
	return strings.TrimSpace(v.PartnerKey)
}

func (v PushVerifier) Verify(shopID int64, body []byte, signature string) bool {
	key := v.key(shopID)
	if key == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	if core.VerifyDigest(core.Sign(key, string(body)), signature) {
		return true
	}
	if callback := strings.TrimSpace(v.CallbackURL); callback != "" {
		return core.VerifyDigest(core.Sign(key, callback+"|"+string(body)), signature)
	}
	return false
}
