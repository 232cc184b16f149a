package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
)

// Sign returns hex(HMAC-SHA256(secret, orderRef + "|" + paymentRef)), the signature
// the gateway attaches to a payment confirmation.
func Sign(secret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks gateway confirmation signatures with a shared secret.
type Verifier struct {
	secret string
}

// NewVerifier builds a verifier; the secret must be non-empty.
func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("payment signing secret required")
	}
	return &Verifier{secret: secret}, nil
}

// Verify compares the signature in constant time. Hex case is ignored.
func (v *Verifier) Verify(orderRef, paymentRef, signature string) error {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return signatureInvalid()
	}
	expected, _ := hex.DecodeString(Sign(v.secret, orderRef, paymentRef))
	if !hmac.Equal(expected, provided) {
		return signatureInvalid()
	}
	return nil
}

func signatureInvalid() error {
	return pkgerrors.New(pkgerrors.CodeSignatureInvalid, "payment signature verification failed")
}
