package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 digest of message keyed by
// partnerKey. A wrong key still yields a digest; upstream rejects it.
func Sign(partnerKey string, message string) string {
	mac := hmac.New(sha256.New, []byte(partnerKey))
	_, _ = mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// ShopAuthBaseString is partnerId + apiPath + timestamp.
func ShopAuthBaseString(partnerID int64, apiPath string, timestamp int64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(partnerID, 10))
	b.WriteString(apiPath)
	b.WriteString(strconv.FormatInt(timestamp, 10))
	return b.String()
}

// SessionBaseString is partnerId + apiPath + timestamp + accessToken + shopId.
func SessionBaseString(partnerID int64, apiPath string, timestamp int64, accessToken string, shopID int64) string {
	var b strings.Builder
	b.WriteString(ShopAuthBaseString(partnerID, apiPath, timestamp))
	b.WriteString(accessToken)
	b.WriteString(strconv.FormatInt(shopID, 10))
	return b.String()
}

// Signer binds the partner credential to the two request signature classes.
type Signer struct {
	PartnerID  int64
	PartnerKey string
}

func NewSigner(cred Credential) Signer {
	return Signer{PartnerID: cred.PartnerID, PartnerKey: cred.PartnerKey}
}

func (s Signer) SignShopAuth(apiPath string, timestamp int64) string {
	return Sign(s.PartnerKey, ShopAuthBaseString(s.PartnerID, apiPath, timestamp))
}

func (s Signer) SignSession(apiPath string, timestamp int64, accessToken string, shopID int64) string {
	return Sign(s.PartnerKey, SessionBaseString(s.PartnerID, apiPath, timestamp, accessToken, shopID))
}

// VerifyDigest compares a received hex digest against the expected one in
// constant time. Case of the received digest is ignored.
func VerifyDigest(expected string, received string) bool {
	received = strings.ToLower(strings.TrimSpace(received))
	if received == "" || len(received) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(received))
}
