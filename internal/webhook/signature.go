// Package webhook authenticates gateway notifications before anything else
// looks at them.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"verified-checkout/internal/domain"
)

// Header names the gateway signs notifications with, in lookup order.
var SignatureHeaders = []string{"Chapa-Signature", "X-Chapa-Signature"}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Verify checks signature against HMAC-SHA256(secret, body) in constant
// time. body must be the bytes exactly as received.
func (a *Authenticator) Verify(body []byte, signature string) error {
	if len(a.secret) == 0 {
		return fmt.Errorf("%w: webhook secret not configured", domain.ErrUnauthorized)
	}
	claimed := strings.ToLower(strings.TrimSpace(signature))
	if claimed == "" {
		return fmt.Errorf("%w: missing signature", domain.ErrUnauthorized)
	}
	if !hmac.Equal([]byte(a.Sign(body)), []byte(claimed)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	}
	return nil
}

// Sign returns the hex signature the gateway would send for body.
func (a *Authenticator) Sign(body []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func SignatureFromHeader(h http.Header) string {
	for _, name := range SignatureHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}
