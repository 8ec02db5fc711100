package users

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	ok, err := h.Verify(hash, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(hash, "secret2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.Verify("", "secret1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_RejectsEmptyPassword(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost).Hash("")
	assert.Error(t, err)
}

func TestHasher_CorruptHashIsAnError(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost).Verify("not-a-bcrypt-hash", "secret1")
	assert.Error(t, err)
}

func TestValidateRegistration(t *testing.T) {
	cases := []struct {
		name     string
		email    string
		password string
		problems int
	}{
		{"valid", "ada@example.com", "secret1", 0},
		{"minimum length", "ada@example.com", "123456", 0},
		{"short password", "ada@example.com", "12345", 1},
		{"five multibyte characters", "ada@example.com", "äöüßé", 1},
		{"six multibyte characters", "ada@example.com", "äöüßéñ", 0},
		{"bad email", "ada.example.com", "secret1", 1},
		{"empty email", "", "secret1", 1},
		{"too long for bcrypt", "ada@example.com", strings.Repeat("x", 73), 1},
		{"everything wrong", "nope", "1", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRegistration(NewUser{Email: tc.email}, tc.password)
			if tc.problems == 0 {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Len(t, ve.Problems, tc.problems)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
