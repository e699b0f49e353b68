package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateKey       = errors.New("key already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrUnauthenticated    = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrRevoked            = errors.New("refresh token revoked or not found")
	ErrForbidden          = errors.New("access denied")
)

// Token failure states. Each one is an ErrInvalidToken.
var (
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// ErrInsufficientFunds is an ErrInvalidInput so callers can treat it as a client error.
var ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrInvalidInput)
