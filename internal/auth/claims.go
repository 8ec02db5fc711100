package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the only supported token payload shape for this service.
//
// Roles are serialised as a JSON array under "role", one entry per role, so a
// role name containing a delimiter can never be split apart. Decoding also
// accepts a single string, which is how some issuers emit a lone role.
// Order is not preserved across issue/validate; treat Roles as a set.
type Claims struct {
	jwt.RegisteredClaims

	Email string           `json:"email,omitempty"`
	Roles jwt.ClaimStrings `json:"role,omitempty"`
}

// Subject identifies whom a token is issued for.
type Subject struct {
	ID    string
	Email string
}
