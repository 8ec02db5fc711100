package auth

import "errors"

// Token failures. Every error returned by Codec matches exactly one of these
// via errors.Is so the HTTP layer can map it to an access-denial response.
var (
	ErrMalformedToken      = errors.New("auth: malformed token")
	ErrSignatureMismatch   = errors.New("auth: token signature mismatch")
	ErrTokenExpired        = errors.New("auth: token expired")
	ErrTokenNotYetValid    = errors.New("auth: token not yet valid")
	ErrIssuerMismatch      = errors.New("auth: token issuer mismatch")
	ErrAudienceMismatch    = errors.New("auth: token audience mismatch")
	ErrUnexpectedAlgorithm = errors.New("auth: unexpected signing algorithm")

	// Construction/issuance failures.
	ErrWeakKey          = errors.New("auth: signing key too short for algorithm")
	ErrInvalidPrincipal = errors.New("auth: principal id and email are required")
	ErrInvalidConfig    = errors.New("auth: invalid signing configuration")
)

// FailureReason returns a short, stable label for a token validation error.
// It is used for metrics labels and log attributes, never for responses.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, ErrIssuerMismatch):
		return "issuer"
	case errors.Is(err, ErrAudienceMismatch):
		return "audience"
	case errors.Is(err, ErrUnexpectedAlgorithm):
		return "algorithm"
	default:
		return "other"
	}
}
