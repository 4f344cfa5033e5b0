package webhooks

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

// Push codes handled by the receiver.
const (
	CodeShopDeauthorization = 2
	CodeOrderStatus         = 3
	CodeTrackingNumber      = 4
	CodeShopUpdate          = 5
	CodeReservedStock       = 8
	CodePromotionUpdate     = 9
)

// Envelope is one decoded push. Raw keeps the exact bytes the signature was
// computed over.
type Envelope struct {
	Code      int
	ShopID    int64
	Timestamp time.Time
	Data      map[string]any
	Raw       []byte
	Signature string
	Digest    string
}

// ParseEnvelope decodes {code, shop_id, timestamp, data}. Numbers are read
// defensively; a body that is not a JSON object is an error.
func ParseEnvelope(body []byte, signature string) (Envelope, error) {
	env := Envelope{
		Raw:       body,
		Signature: signature,
		Digest:    Digest(body),
	}
	var raw map[string]any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return env, core.WrapError(err, core.ErrorValidation, "webhooks: body is not a json object", nil)
	}
	var coerce core.Coercion
	env.Code = coerce.Int("code", raw["code"])
	env.ShopID = coerce.Int64("shop_id", raw["shop_id"])
	env.Timestamp = coerce.Unix("timestamp", raw["timestamp"])
	env.Data, _ = raw["data"].(map[string]any)
	if env.Data == nil {
		env.Data = map[string]any{}
	}
	if !coerce.Valid() {
		return env, core.NewError(core.ErrorValidation, fmt.Sprintf("webhooks: malformed envelope: %v", coerce.Issues), nil)
	}
	if env.Code <= 0 {
		return env, core.NewError(core.ErrorValidation, "webhooks: push code is required", nil)
	}
	return env, nil
}

// Digest identifies a payload for replay detection.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
