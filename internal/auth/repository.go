package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// refreshTokenBytes is the entropy of a refresh token before encoding.
const refreshTokenBytes = 32

// TokenRepository mints tokens for directory principals.
//
// Refresh tokens are generated but not stored: there is no rotation or
// revocation, so callers must not treat them as credentials yet.
type TokenRepository struct {
	codec *Codec
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewTokenRepository(codec *Codec) *TokenRepository {
	return &TokenRepository{codec: codec, clock: time.Now}
}

// IssueAccessToken issues an access token for the principal and its current roles.
func (r *TokenRepository) IssueAccessToken(sub Subject, roles []string) (IssuedToken, error) {
	return r.codec.Issue(r.clock(), sub, roles)
}

// NewRefreshToken returns an opaque random string with no embedded claims.
func (r *TokenRepository) NewRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: refresh token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ClaimsFromExpiredToken returns the claims of a token whose only defect
// may be its expiry.
func (r *TokenRepository) ClaimsFromExpiredToken(token string) (Claims, error) {
	return r.codec.ValidateIgnoringExpiry(token)
}
