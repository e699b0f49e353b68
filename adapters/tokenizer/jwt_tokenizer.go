package tokenizer

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

const AudienceAccess = "tessera:access"
const AudienceRefresh = "tessera:refresh"

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "tessera"
)

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// Config configures a JWTTokenizer. Zero TTLs and issuer fall back to defaults.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Now           func() time.Time
}

// keySet is everything needed to sign and check one token type
type keySet struct {
	secret    []byte
	ttl       time.Duration
	audience  string
	tokenType core.TokenType
}

// JWTTokenizer issues and parses HS256 tokens.
// Access and refresh tokens are signed with different secrets.
type JWTTokenizer struct {
	access  keySet
	refresh keySet
	issuer  string
	now     func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(cfg Config) (*JWTTokenizer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &JWTTokenizer{
		access: keySet{
			secret:    cfg.AccessSecret,
			ttl:       cfg.AccessTTL,
			audience:  AudienceAccess,
			tokenType: core.TokenTypeAccess,
		},
		refresh: keySet{
			secret:    cfg.RefreshSecret,
			ttl:       cfg.RefreshTTL,
			audience:  AudienceRefresh,
			tokenType: core.TokenTypeRefresh,
		},
		issuer: cfg.Issuer,
		now:    cfg.Now,
	}, nil
}

// AccessTTL returns the configured access token lifetime
func (j *JWTTokenizer) AccessTTL() time.Duration {
	return j.access.ttl
}

// IssueAccessToken signs claims into a short-lived access token
func (j *JWTTokenizer) IssueAccessToken(claims core.Claims) (core.Token, error) {
	token, err := j.issue(j.access, claims)
	if err != nil {
		return core.Token{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// IssueRefreshToken signs claims into a long-lived refresh token
func (j *JWTTokenizer) IssueRefreshToken(claims core.Claims) (core.Token, error) {
	token, err := j.issue(j.refresh, claims)
	if err != nil {
		return core.Token{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return token, nil
}

// ParseAccessToken verifies an access token and returns its claims
func (j *JWTTokenizer) ParseAccessToken(tokenStr string) (core.Claims, core.Token, error) {
	return j.parse(j.access, tokenStr)
}

// ParseRefreshToken verifies a refresh token and returns its claims
func (j *JWTTokenizer) ParseRefreshToken(tokenStr string) (core.Claims, core.Token, error) {
	return j.parse(j.refresh, tokenStr)
}

func (j *JWTTokenizer) issue(ks keySet, claims core.Claims) (core.Token, error) {
	if claims.PrincipalID <= 0 {
		return core.Token{}, fmt.Errorf("%w: principal id is required", core.ErrInvalidInput)
	}

	now := j.now()
	sc := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   strconv.FormatInt(claims.PrincipalID, 10),
			Audience:  jwt.ClaimStrings{ks.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ks.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Key:  claims.Key,
		Role: string(claims.Role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sc).SignedString(ks.secret)
	if err != nil {
		return core.Token{}, err
	}

	return core.Token{
		Value:     signed,
		Type:      ks.tokenType,
		ID:        sc.ID,
		IssuedAt:  sc.IssuedAt.Time,
		ExpiresAt: sc.ExpiresAt.Time,
	}, nil
}

func (j *JWTTokenizer) parse(ks keySet, tokenStr string) (core.Claims, core.Token, error) {
	sc := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, sc, func(token *jwt.Token) (interface{}, error) {
		return ks.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(ks.audience),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return core.Claims{}, core.Token{}, classify(err)
	}
	if !token.Valid {
		return core.Claims{}, core.Token{}, core.ErrInvalidToken
	}

	id, err := strconv.ParseInt(sc.Subject, 10, 64)
	if err != nil || id <= 0 {
		return core.Claims{}, core.Token{}, fmt.Errorf("%w: bad subject %q", core.ErrTokenMalformed, sc.Subject)
	}

	claims := core.Claims{
		PrincipalID: id,
		Key:         sc.Key,
		Role:        core.Role(sc.Role),
	}
	parsed := core.Token{
		Value:     tokenStr,
		Type:      ks.tokenType,
		ID:        sc.ID,
		ExpiresAt: sc.ExpiresAt.Time,
	}
	if sc.IssuedAt != nil {
		parsed.IssuedAt = sc.IssuedAt.Time
	}
	return claims, parsed, nil
}

// classify maps jwt parse failures onto the token states callers care about
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", core.ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", core.ErrTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return core.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}
}
