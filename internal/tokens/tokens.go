package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/finboard/finboard/backend/gateway/internal/common"
	"github.com/finboard/finboard/backend/gateway/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrSecretNotConfigured = errors.New("jwt secret not configured")
	ErrSecretsNotDistinct  = errors.New("refresh secret must differ from the access secret")
)

// Claims carried by both token kinds. Subject is the credential ID.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Type  string `json:"typ"`
}

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime.
	ExpiresIn time.Duration
}

// Issuer mints and verifies HS256 tokens. Access and refresh tokens are signed
// with different secrets.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewIssuer validates the JWT configuration and returns an Issuer.
func NewIssuer(cfg config.JWTConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretNotConfigured
	}
	refresh := cfg.RefreshSecret
	if refresh == "" {
		refresh = config.DeriveRefreshSecret(cfg.Secret)
	}
	if refresh == cfg.Secret {
		return nil, ErrSecretsNotDistinct
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		accessSecret:  []byte(cfg.Secret),
		refreshSecret: []byte(refresh),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

// WithClock replaces the time source; used by tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Mint signs a new access/refresh pair for the given subject.
func (i *Issuer) Mint(sub, email string) (*Pair, error) {
	if sub == "" {
		return nil, fmt.Errorf("mint: empty subject")
	}
	now := i.now()
	access, err := i.sign(sub, email, TypeAccess, now, i.accessTTL, i.accessSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := i.sign(sub, email, TypeRefresh, now, i.refreshTTL, i.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &Pair{AccessToken: access, RefreshToken: refresh, ExpiresIn: i.accessTTL}, nil
}

func (i *Issuer) sign(sub, email, typ string, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Type:  typ,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess validates an access token and returns its claims.
func (i *Issuer) VerifyAccess(raw string) (*Claims, error) {
	return i.verify(raw, TypeAccess, i.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (i *Issuer) VerifyRefresh(raw string) (*Claims, error) {
	return i.verify(raw, TypeRefresh, i.refreshSecret)
}

func (i *Issuer) verify(raw, typ string, secret []byte) (*Claims, error) {
	if raw == "" {
		return nil, common.ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Type != typ || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
