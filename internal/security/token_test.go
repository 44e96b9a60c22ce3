package security

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelight/fanquest/internal/domain"
)

var secret = []byte("test-secret-with-enough-bytes-32!")

func identify(t *testing.T, v *Verifier, header string) (string, error) {
	t.Helper()
	r := httptest.NewRequest("GET", "/api/v1/me", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return v.Identify(r)
}

func TestVerifier_HS256(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Secret: secret, Issuer: "fanquest"})
	require.NoError(t, err)
	m, err := NewMinter(secret, nil, "fanquest")
	require.NoError(t, err)

	tok, err := m.Mint("user-1", "Mochi", time.Hour)
	require.NoError(t, err)

	sub, err := identify(t, v, "Bearer "+tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	claims, err := v.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "Mochi", claims.Name)
}

func TestVerifier_EdDSA(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	v, err := NewVerifier(VerifierConfig{PublicKey: kp.Public})
	require.NoError(t, err)
	m, err := NewMinter(nil, kp, "")
	require.NoError(t, err)

	tok, err := m.Mint("user-2", "", time.Minute)
	require.NoError(t, err)
	sub, err := identify(t, v, "bearer "+tok)
	require.NoError(t, err)
	assert.Equal(t, "user-2", sub)

	// an HS256 token is refused when only EdDSA is configured
	hm, _ := NewMinter(secret, nil, "")
	hs, _ := hm.Mint("user-2", "", time.Minute)
	_, err = identify(t, v, "Bearer "+hs)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifier_Rejects(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Secret: secret, Issuer: "fanquest"})
	require.NoError(t, err)

	m, _ := NewMinter(secret, nil, "fanquest")
	past := time.Now().Add(-2 * time.Hour)
	m.now = func() time.Time { return past }
	expired, _ := m.Mint("user-1", "", time.Hour)

	other, _ := NewMinter([]byte("another-secret-another-secret-xx"), nil, "fanquest")
	forged, _ := other.Mint("user-1", "", time.Hour)

	wrongIss, _ := NewMinter(secret, nil, "someone-else")
	foreign, _ := wrongIss.Mint("user-1", "", time.Hour)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1", Issuer: "fanquest",
	}).SignedString(secret)

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: "fanquest", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic dXNlcjpwYXNz",
		"empty token":    "Bearer ",
		"garbage":        "Bearer not.a.jwt",
		"expired":        "Bearer " + expired,
		"bad signature":  "Bearer " + forged,
		"wrong issuer":   "Bearer " + foreign,
		"no expiry":      "Bearer " + noExp,
		"no subject":     "Bearer " + noSub,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := identify(t, v, header)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestNewVerifier_NeedsKey(t *testing.T) {
	_, err := NewVerifier(VerifierConfig{})
	assert.Error(t, err)

	_, err = NewMinter(nil, nil, "")
	assert.Error(t, err)
}

func TestMinter_EmptySubject(t *testing.T) {
	m, _ := NewMinter(secret, nil, "")
	_, err := m.Mint(" ", "", time.Hour)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
