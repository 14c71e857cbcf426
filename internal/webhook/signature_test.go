package webhook

import (
	"net/http"
	"strings"
	"testing"

	"verified-checkout/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestAuthenticator_Verify(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	body := []byte(`{"tx_ref":"t1"}`)
	valid := auth.Sign(body)

	var tests = []struct {
		name        string
		auth        *Authenticator
		body        []byte
		signature   string
		expectedErr error
	}{
		{name: "valid", auth: auth, body: body, signature: valid},
		{name: "valid upper case hex", auth: auth, body: body, signature: strings.ToUpper(valid)},
		{name: "missing", auth: auth, body: body, signature: "", expectedErr: domain.ErrUnauthorized},
		{name: "wrong", auth: auth, body: body, signature: "deadbeef", expectedErr: domain.ErrUnauthorized},
		{name: "reformatted body", auth: auth, body: []byte(`{"tx_ref": "t1"}`), signature: valid, expectedErr: domain.ErrUnauthorized},
		{name: "other secret", auth: NewAuthenticator("other"), body: body, signature: valid, expectedErr: domain.ErrUnauthorized},
		{name: "no secret configured", auth: NewAuthenticator(""), body: body, signature: NewAuthenticator("").Sign(body), expectedErr: domain.ErrUnauthorized},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.auth.Verify(tt.body, tt.signature)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAuthenticator_Sign(t *testing.T) {
	sig := NewAuthenticator("s3cret").Sign([]byte(`{"tx_ref":"t1"}`))
	require.Len(t, sig, 64)
	require.Equal(t, sig, NewAuthenticator("s3cret").Sign([]byte(`{"tx_ref":"t1"}`)))
	require.NotEqual(t, sig, NewAuthenticator("s3cret").Sign([]byte(`{"tx_ref":"t2"}`)))
}

func TestSignatureFromHeader(t *testing.T) {
	h := http.Header{}
	require.Equal(t, "", SignatureFromHeader(h))

	h.Set("X-Chapa-Signature", "fallback")
	require.Equal(t, "fallback", SignatureFromHeader(h))

	h.Set("Chapa-Signature", "primary")
	require.Equal(t, "primary", SignatureFromHeader(h))
}
