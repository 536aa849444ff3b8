package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway tolerates small clock drift between the issuer and this service.
const DefaultLeeway = 30 * time.Second

// JWTConfig bundles the configuration required to build a Verifier.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
	Clock    func() time.Time
}

// Claims represents the claims this service reads from access tokens issued
// by the identity provider.
type Claims struct {
	UserID    int64  `json:"uid"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens. It never issues tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewVerifier constructs a Verifier when provided with the required configuration.
func NewVerifier(cfg JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	leeway := cfg.Leeway
	if leeway < 0 {
		leeway = 0
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &Verifier{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   leeway,
		now:      now,
	}, nil
}

// ValidateAccessToken parses and validates a signed JWT, returning its claims.
// Tokens without a numeric uid fall back to a numeric subject.
func (v *Verifier) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if claims.UserID == 0 && claims.Subject != "" {
		id, convErr := strconv.ParseInt(claims.Subject, 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("jwt: subject %q is not a user id", claims.Subject)
		}
		claims.UserID = id
	}
	if claims.UserID <= 0 {
		return nil, errors.New("jwt: missing user id claim")
	}
	if claims.SessionID == "" {
		claims.SessionID = claims.ID
	}

	return &claims, nil
}
