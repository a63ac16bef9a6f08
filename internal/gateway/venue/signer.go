package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// Signer authenticates REST requests for one wallet identity.
// Keys are held as []byte so they can be wiped.
type Signer struct {
	walletID   string
	secretKey  []byte
	subaccount string
}

// NewSigner creates a signer for one wallet.
func NewSigner(walletID, secretKey, subaccount string) *Signer {
	return &Signer{
		walletID:   walletID,
		secretKey:  []byte(secretKey),
		subaccount: subaccount,
	}
}

// Address derives the deterministic subaccount address for this signer.
// The venue scopes balances and orders by this value.
func (s *Signer) Address() string {
	sum := sha256.Sum256(append([]byte(s.walletID+":"+s.subaccount+":"), s.secretKey...))
	return "0x" + hex.EncodeToString(sum[:20])
}

// Wipe clears the key material from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.secretKey {
		s.secretKey[i] = 0
	}
}

// GenerateHeaders creates the signed headers for one request.
// Pre-signature string: timestamp + method + path + body.
func (s *Signer) GenerateHeaders(method, path, body string) map[string]string {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

	payload := timestamp + method + path + body
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"X-WALLET":     s.walletID,
		"X-SUBACCOUNT": s.subaccount,
		"X-SIGN":       signature,
		"X-TIMESTAMP":  timestamp,
		"Content-Type": "application/json",
	}
}
