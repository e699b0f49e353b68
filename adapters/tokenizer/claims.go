package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the principal's key and role.
// The principal ID travels as the subject.
type SessionClaims struct {
	jwt.RegisteredClaims
	Key  string `json:"key"`
	Role string `json:"role,omitempty"`
}
