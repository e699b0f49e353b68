package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
	"github.com/shopspring/decimal"
)

// Seed is a principal created at startup when its key is not yet registered
type Seed struct {
	Key     string
	Secret  string
	Role    core.Role
	Balance decimal.Decimal
}

// AuthService handles authentication business logic
type AuthService struct {
	credentials *CredentialStore
	tokenizer   ports.Tokenizer
	ledger      ports.RevocationLedger
	verifier    *Verifier
	eventPub    ports.EventPublisher
	opts        options
}

// NewAuthService creates a new authentication service
func NewAuthService(
	credentials *CredentialStore,
	tokenizer ports.Tokenizer,
	ledger ports.RevocationLedger,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		tokenizer:   tokenizer,
		ledger:      ledger,
		verifier:    NewVerifier(tokenizer, ledger, opts...),
		eventPub:    eventPub,
		opts:        newOptions(opts),
	}
}

// Verifier returns the token verifier used by the service
func (s *AuthService) Verifier() *Verifier {
	return s.verifier
}

// Register creates a principal. The role defaults to User.
func (s *AuthService) Register(ctx context.Context, key, secret string, profile core.Profile) (id int64, err error) {
	defer func() { s.opts.metrics.AuthOp("register", err) }()

	id, err = s.credentials.Register(ctx, key, secret, profile)
	if err != nil {
		s.opts.logger.Debug(ctx, "registration rejected", "error", err)
		return 0, err
	}

	s.opts.logger.Info(ctx, "principal registered", "principal_id", id)
	s.publish(ctx, core.RegisteredEvent{PrincipalID: id, PrincipalKey: strings.TrimSpace(key), At: s.opts.now()})
	return id, nil
}

// Login verifies credentials, issues a token pair and records the refresh token
func (s *AuthService) Login(ctx context.Context, key, secret string) (pair core.TokenPair, err error) {
	defer func() { s.opts.metrics.AuthOp("login", err) }()

	p, err := s.credentials.Verify(ctx, key, secret)
	if err != nil {
		s.opts.logger.Debug(ctx, "login rejected", "error", err)
		return core.TokenPair{}, err
	}

	claims := core.ClaimsFor(p)
	access, err := s.tokenizer.IssueAccessToken(claims)
	if err != nil {
		return core.TokenPair{}, err
	}
	refresh, err := s.tokenizer.IssueRefreshToken(claims)
	if err != nil {
		return core.TokenPair{}, err
	}

	if err := s.ledger.Record(ctx, refresh.Value, refresh.ExpiresAt); err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to record refresh token: %w", err)
	}

	now := s.opts.now()
	s.opts.logger.Info(ctx, "principal logged in", "principal_id", p.ID, "token_id", refresh.ID)
	s.publish(ctx, core.LoginEvent{PrincipalID: p.ID, TokenID: refresh.ID, At: now})

	return core.TokenPair{
		AccessToken:  access.Value,
		RefreshToken: refresh.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int64(access.ExpiresAt.Sub(access.IssuedAt).Seconds()),
	}, nil
}

// Refresh exchanges a listed refresh token for a new access token. The
// principal is reloaded so role changes since login take effect.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (access core.Token, err error) {
	defer func() { s.opts.metrics.AuthOp("refresh", err) }()

	claims, _, err := s.verifier.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		s.opts.logger.Debug(ctx, "refresh rejected", "error", err)
		return core.Token{}, err
	}

	p, err := s.credentials.FindByID(ctx, claims.PrincipalID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Token{}, fmt.Errorf("%w: unknown principal", core.ErrInvalidToken)
	}
	if err != nil {
		return core.Token{}, err
	}

	return s.tokenizer.IssueAccessToken(core.ClaimsFor(p))
}

// Logout removes a refresh token from the ledger. Revoking a token that is
// not listed succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func() { s.opts.metrics.AuthOp("logout", err) }()

	if refreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", core.ErrInvalidInput)
	}

	if err := s.ledger.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	// The token may be expired or foreign; the event carries whatever can be read from it.
	event := core.LogoutEvent{At: s.opts.now()}
	if claims, parsed, perr := s.tokenizer.ParseRefreshToken(refreshToken); perr == nil {
		event.PrincipalID = claims.PrincipalID
		event.TokenID = parsed.ID
	}
	s.opts.logger.Info(ctx, "refresh token revoked", "principal_id", event.PrincipalID, "token_id", event.TokenID)
	s.publish(ctx, event)
	return nil
}

// VerifyAccess checks an access token and returns its claims
func (s *AuthService) VerifyAccess(ctx context.Context, accessToken string) (core.Claims, error) {
	return s.verifier.VerifyAccess(ctx, accessToken)
}

// Authorize fails with core.ErrForbidden unless the claims' role is allowed
func (s *AuthService) Authorize(claims core.Claims, allowed core.RoleSet) error {
	return s.verifier.Authorize(claims, allowed)
}

// Balance returns the current state of a principal
func (s *AuthService) Balance(ctx context.Context, id int64) (*core.Principal, error) {
	return s.credentials.FindByID(ctx, id)
}

// Transfer moves amount from fromID to the principal registered under toKey
func (s *AuthService) Transfer(ctx context.Context, fromID int64, toKey string, amount decimal.Decimal) (toID int64, err error) {
	defer func() { s.opts.metrics.AuthOp("transfer", err) }()

	toID, err = s.credentials.Transfer(ctx, fromID, toKey, amount)
	if err != nil {
		s.opts.logger.Debug(ctx, "transfer rejected", "from_id", fromID, "error", err)
		return 0, err
	}

	s.opts.logger.Info(ctx, "transfer committed", "from_id", fromID, "to_id", toID, "amount", amount.String())
	s.publish(ctx, core.TransferEvent{FromID: fromID, ToID: toID, Amount: amount, At: s.opts.now()})
	return toID, nil
}

// Bootstrap registers each seed whose key is not taken yet and returns how
// many were created.
func (s *AuthService) Bootstrap(ctx context.Context, seeds []Seed) (int, error) {
	created := 0
	for _, seed := range seeds {
		id, err := s.credentials.Register(ctx, seed.Key, seed.Secret, core.Profile{
			Role:    seed.Role,
			Balance: seed.Balance,
		})
		if errors.Is(err, core.ErrDuplicateKey) {
			s.opts.logger.Debug(ctx, "seed already registered", "key", seed.Key)
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %q: %w", seed.Key, err)
		}
		created++
		s.opts.logger.Info(ctx, "seed registered", "principal_id", id, "role", string(seed.Role))
	}
	return created, nil
}

// publish sends an event; failures are logged and never fail the caller
func (s *AuthService) publish(ctx context.Context, event core.Event) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.Publish(ctx, event); err != nil {
		s.opts.logger.Warn(ctx, "failed to publish event", "topic", event.Topic(), "error", err)
	}
}
