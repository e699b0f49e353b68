package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenType tags a token as access or refresh
type TokenType string

const (
	// TokenTypeAccess marks a short-lived token presented on every call
	TokenTypeAccess TokenType = "access"

	// TokenTypeRefresh marks a long-lived token exchanged for new access tokens
	TokenTypeRefresh TokenType = "refresh"
)

const (
	// MaxSecretBytes is the longest secret accepted at registration; bcrypt
	// rejects anything longer.
	MaxSecretBytes = 72

	// BalanceScale is the number of decimal places a balance or amount may carry
	BalanceScale int32 = 4
)

// Principal represents a registered identity
type Principal struct {
	ID         int64     // Monotonic identifier, starts at 1
	Key        string    // Unique lookup key (email or username)
	SecretHash string    // One-way hash of the secret, never the plaintext
	Profile    Profile   // Mutable profile attributes
	CreatedAt  time.Time // When the principal registered
}

// Profile holds the mutable part of a principal
type Profile struct {
	Role       Role
	Balance    decimal.Decimal
	Attributes map[string]string
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (p Profile) Clone() Profile {
	out := Profile{Role: p.Role, Balance: p.Balance}
	if p.Attributes != nil {
		out.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// Claims are the identity assertions signed into a token
type Claims struct {
	PrincipalID int64
	Key         string
	Role        Role
}

// ClaimsFor derives the claims of a principal at issuance time.
func ClaimsFor(p *Principal) Claims {
	return Claims{
		PrincipalID: p.ID,
		Key:         p.Key,
		Role:        p.Profile.Role,
	}
}

// Token is a signed bearer credential
type Token struct {
	Value     string    // Encoded token string
	Type      TokenType // access or refresh
	ID        string    // Unique token identifier (jti)
	IssuedAt  time.Time
	ExpiresAt time.Time // Encoded expiry
}

// String returns the encoded token
func (t Token) String() string {
	return t.Value
}

// TokenPair is returned by a successful login
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64 // Access token lifetime in seconds
}
