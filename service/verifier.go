package service

import (
	"context"
	"fmt"

	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

// Verifier validates presented tokens and enforces role policy.
// Refresh tokens must also be in the revocation ledger; access tokens are
// not looked up there and stay usable until they expire.
type Verifier struct {
	parser ports.TokenParser
	ledger ports.RevocationLedger
	opts   options
}

// NewVerifier creates a new verifier
func NewVerifier(parser ports.TokenParser, ledger ports.RevocationLedger, opts ...Option) *Verifier {
	return &Verifier{
		parser: parser,
		ledger: ledger,
		opts:   newOptions(opts),
	}
}

// VerifyAccess checks an access token and returns its claims
func (v *Verifier) VerifyAccess(ctx context.Context, token string) (claims core.Claims, err error) {
	defer func() { v.opts.metrics.Verification(string(core.TokenTypeAccess), err) }()

	if token == "" {
		return core.Claims{}, core.ErrUnauthenticated
	}
	claims, _, err = v.parser.ParseAccessToken(token)
	if err != nil {
		return core.Claims{}, err
	}
	return claims, nil
}

// VerifyRefresh checks ledger membership first, then signature and expiry
func (v *Verifier) VerifyRefresh(ctx context.Context, token string) (claims core.Claims, parsed core.Token, err error) {
	defer func() { v.opts.metrics.Verification(string(core.TokenTypeRefresh), err) }()

	if token == "" {
		return core.Claims{}, core.Token{}, fmt.Errorf("%w: refresh token is required", core.ErrInvalidInput)
	}

	listed, err := v.ledger.Contains(ctx, token)
	if err != nil {
		return core.Claims{}, core.Token{}, fmt.Errorf("failed to check ledger: %w", err)
	}
	if !listed {
		return core.Claims{}, core.Token{}, core.ErrRevoked
	}

	claims, parsed, err = v.parser.ParseRefreshToken(token)
	if err != nil {
		return core.Claims{}, core.Token{}, err
	}
	return claims, parsed, nil
}

// Authorize fails with core.ErrForbidden unless the claims' role is in allowed
func (v *Verifier) Authorize(claims core.Claims, allowed core.RoleSet) error {
	if !allowed.Allows(claims.Role) {
		return core.ErrForbidden
	}
	return nil
}
