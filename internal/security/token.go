package security

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stagelight/fanquest/internal/domain"
)

// Claims are the bearer token claims. The subject is the user id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// VerifierConfig configures token verification. At least one of Secret
// (HS256) or PublicKey (EdDSA) must be set.
type VerifierConfig struct {
	Secret    []byte
	PublicKey ed25519.PublicKey
	Issuer    string
	Audience  string
	Leeway    time.Duration
	Now       func() time.Time
}

// Verifier resolves bearer tokens to user ids. It implements
// domain.IdentityVerifier.
type Verifier struct {
	cfg     VerifierConfig
	methods []string
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	var methods []string
	if len(cfg.Secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if len(cfg.PublicKey) == ed25519.PublicKeySize {
		methods = append(methods, jwt.SigningMethodEdDSA.Alg())
	}
	if len(methods) == 0 {
		return nil, errors.New("token verifier needs a secret or an ed25519 public key")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{cfg: cfg, methods: methods}, nil
}

// Identify returns the subject of the request's bearer token.
func (v *Verifier) Identify(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", domain.ErrUnauthorized)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: invalid Authorization header format", domain.ErrUnauthorized)
	}
	claims, err := v.Parse(strings.TrimSpace(token))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Parse validates a token string and returns its claims.
func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithTimeFunc(v.cfg.Now),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.key, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return claims, nil
}

func (v *Verifier) key(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.cfg.Secret) == 0 {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.cfg.Secret, nil
	case *jwt.SigningMethodEd25519:
		if len(v.cfg.PublicKey) == 0 {
			return nil, errors.New("eddsa tokens not accepted")
		}
		return v.cfg.PublicKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
}

// ─── Minting ────────────────────────────────────────────────────────────────

// Minter issues tokens for operators and tests. With a keypair it signs
// EdDSA, otherwise HS256 with the secret.
type Minter struct {
	secret  []byte
	keypair *Keypair
	issuer  string
	now     func() time.Time
}

// NewMinter creates a minter. keypair may be nil.
func NewMinter(secret []byte, keypair *Keypair, issuer string) (*Minter, error) {
	if len(secret) == 0 && keypair == nil {
		return nil, errors.New("token minter needs a secret or a keypair")
	}
	return &Minter{secret: secret, keypair: keypair, issuer: issuer, now: time.Now}, nil
}

// Mint returns a signed token for subject valid for ttl.
func (m *Minter) Mint(subject, name string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("%w: empty subject", domain.ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := m.now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	if m.keypair != nil {
		return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.keypair.Private)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}
