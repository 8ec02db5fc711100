package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"identity-api/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Codec issues and verifies signed bearer tokens.
//
// A Codec is immutable once built and safe for concurrent use. Key rotation
// means building a new Codec from a new config.AuthConfig.
type Codec struct {
	method   *jwt.SigningMethodHMAC
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
}

// Minimum HMAC key lengths, one hash output size per algorithm.
var minKeyBytes = map[string]int{
	"HS256": 32,
	"HS384": 48,
	"HS512": 64,
}

func NewCodec(cfg config.AuthConfig) (*Codec, error) {
	alg := cfg.JWTAlgorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, alg)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrInvalidConfig)
	}
	if err := checkKeyStrength(method, []byte(cfg.JWTSecret)); err != nil {
		return nil, err
	}
	if cfg.JWTIssuer == "" || cfg.JWTAudience == "" {
		return nil, fmt.Errorf("%w: issuer and audience are required", ErrInvalidConfig)
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("%w: access token ttl must be positive", ErrInvalidConfig)
	}
	if cfg.ClockSkew < 0 {
		return nil, fmt.Errorf("%w: clock skew must not be negative", ErrInvalidConfig)
	}

	return &Codec{
		method:   method,
		key:      []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		ttl:      cfg.AccessTokenTTL,
		leeway:   cfg.ClockSkew,
	}, nil
}

func checkKeyStrength(method jwt.SigningMethod, key []byte) error {
	need := minKeyBytes[method.Alg()]
	if len(key) < need {
		return fmt.Errorf("%w: %s needs at least %d bytes, got %d", ErrWeakKey, method.Alg(), need, len(key))
	}
	return nil
}

// Algorithm returns the single algorithm this codec signs and accepts.
func (c *Codec) Algorithm() string { return c.method.Alg() }

// TTL returns the validity window applied to issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// IssuedToken is a freshly signed token plus the metadata callers report.
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

/* ===================== ISSUE ===================== */

// Issue signs a token for sub carrying one role entry per distinct role.
// Issue performs no I/O; the only non-determinism is now and the random jti.
func (c *Codec) Issue(now time.Time, sub Subject, roles []string) (IssuedToken, error) {
	if strings.TrimSpace(sub.ID) == "" || strings.TrimSpace(sub.Email) == "" {
		return IssuedToken{}, ErrInvalidPrincipal
	}
	if err := checkKeyStrength(c.method, c.key); err != nil {
		return IssuedToken{}, err
	}

	// NumericDate has second precision; truncate so the reported times match the payload.
	now = now.UTC().Truncate(time.Second)
	exp := now.Add(c.ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID,
			ID:        jti,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: sub.Email,
		Roles: distinctRoles(roles),
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.key)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return IssuedToken{Token: signed, ID: jti, IssuedAt: now, ExpiresAt: exp}, nil
}

func distinctRoles(roles []string) jwt.ClaimStrings {
	out := make(jwt.ClaimStrings, 0, len(roles))
	for _, r := range roles {
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

/* ===================== VALIDATE ===================== */

// ValidationOptions selects which claim checks Validate runs after the
// signature check. The signature and algorithm checks are always on.
type ValidationOptions struct {
	Issuer   bool
	Audience bool
	Lifetime bool
}

// FullValidation is what every protected endpoint uses.
var FullValidation = ValidationOptions{Issuer: true, Audience: true, Lifetime: true}

// Validate verifies token and returns its claim set.
func (c *Codec) Validate(token string, now time.Time, opts ValidationOptions) (Claims, error) {
	claims, err := c.verify(token)
	if err != nil {
		return Claims{}, err
	}
	if opts.Issuer {
		if err := c.checkIssuer(claims); err != nil {
			return Claims{}, err
		}
	}
	if opts.Audience {
		if err := c.checkAudience(claims); err != nil {
			return Claims{}, err
		}
	}
	if opts.Lifetime {
		if err := c.checkLifetime(claims, now); err != nil {
			return Claims{}, err
		}
	}
	return claims, nil
}

// ValidateIgnoringExpiry extracts the claims of a token that may have expired.
// Signature, algorithm, issuer and audience checks cannot be turned off here.
func (c *Codec) ValidateIgnoringExpiry(token string) (Claims, error) {
	claims, err := c.verify(token)
	if err != nil {
		return Claims{}, err
	}
	if err := c.checkIssuer(claims); err != nil {
		return Claims{}, err
	}
	if err := c.checkAudience(claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// verify checks structure, algorithm and signature. No claim is validated here.
func (c *Codec) verify(token string) (Claims, error) {
	if err := checkSegments(token); err != nil {
		return Claims{}, err
	}

	var claims Claims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		// Allow-list of exactly one algorithm; the header never picks the verifier.
		if t.Method == nil || t.Method.Alg() != c.method.Alg() {
			return nil, ErrUnexpectedAlgorithm
		}
		return c.key, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if claims.Roles == nil {
		claims.Roles = jwt.ClaimStrings{}
	}
	return claims, nil
}

func checkSegments(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return fmt.Errorf("%w: segment %d is empty", ErrMalformedToken, i)
		}
		if _, err := base64.RawURLEncoding.DecodeString(p); err != nil {
			return fmt.Errorf("%w: segment %d is not base64url", ErrMalformedToken, i)
		}
	}
	return nil
}

// mapParseError translates golang-jwt errors into this package's taxonomy.
// HMAC verification inside golang-jwt compares with hmac.Equal (constant time).
func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnexpectedAlgorithm):
		return ErrUnexpectedAlgorithm
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// alg missing from the header or not a known method.
		return ErrUnexpectedAlgorithm
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureMismatch
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

func (c *Codec) checkIssuer(claims Claims) error {
	if claims.Issuer != c.issuer {
		return ErrIssuerMismatch
	}
	return nil
}

func (c *Codec) checkAudience(claims Claims) error {
	if !slices.Contains(claims.Audience, c.audience) {
		return ErrAudienceMismatch
	}
	return nil
}

func (c *Codec) checkLifetime(claims Claims, now time.Time) error {
	v := jwt.NewValidator(
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(c.leeway),
		jwt.WithExpirationRequired(),
	)
	err := v.Validate(claims)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: exp claim missing", ErrMalformedToken)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
