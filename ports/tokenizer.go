package ports

import "github.com/layer-3/tessera/core"

// TokenIssuer mints signed tokens from claims
type TokenIssuer interface {
	IssueAccessToken(claims core.Claims) (core.Token, error)
	IssueRefreshToken(claims core.Claims) (core.Token, error)
}

// TokenParser checks signature, type and expiry of a token and extracts its claims.
// It has no knowledge of the revocation ledger.
type TokenParser interface {
	ParseAccessToken(token string) (core.Claims, core.Token, error)
	ParseRefreshToken(token string) (core.Claims, core.Token, error)
}

// Tokenizer converts between claims and tokens
type Tokenizer interface {
	TokenIssuer
	TokenParser
}

// Hasher turns secrets into one-way hashes
type Hasher interface {
	Hash(secret string) (string, error)
	// Compare returns nil when secret matches hash
	Compare(hash, secret string) error
}
