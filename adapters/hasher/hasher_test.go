package hasher

import (
	"strings"
	"testing"

	"github.com/layer-3/tessera/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testHashers(t *testing.T) map[string]ports.Hasher {
	t.Helper()
	b, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	a, err := NewArgon2(Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	return map[string]ports.Hasher{"bcrypt": b, "argon2id": a}
}

func TestHashAndCompare(t *testing.T) {
	for name, h := range testHashers(t) {
		t.Run(name, func(t *testing.T) {
			hash, err := h.Hash("secret1")
			require.NoError(t, err)
			assert.NotContains(t, hash, "secret1")

			assert.NoError(t, h.Compare(hash, "secret1"))
			assert.ErrorIs(t, h.Compare(hash, "secret2"), ErrMismatch)
		})
	}
}

func TestHashIsSalted(t *testing.T) {
	for name, h := range testHashers(t) {
		t.Run(name, func(t *testing.T) {
			a, err := h.Hash("same-secret")
			require.NoError(t, err)
			b, err := h.Hash("same-secret")
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	for name, h := range testHashers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := h.Hash("")
			assert.Error(t, err)
		})
	}
}

func TestCompareRejectsGarbageHash(t *testing.T) {
	for name, h := range testHashers(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, h.Compare("", "x"))
			assert.Error(t, h.Compare("$argon2id$v=1$m=1$x$y", "x"))
		})
	}
}

func TestArgon2Format(t *testing.T) {
	h, err := NewArgon2(DefaultArgon2Config)
	require.NoError(t, err)
	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=2,p=1$"), hash)
}

func TestNewBcryptCostBounds(t *testing.T) {
	_, err := NewBcrypt(bcrypt.MaxCost + 1)
	assert.Error(t, err)

	b, err := NewBcrypt(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBcryptCost, b.cost)
}

func TestNewArgon2Validation(t *testing.T) {
	_, err := NewArgon2(Argon2Config{})
	assert.Error(t, err)
}
