package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// ClaimsKey is the gin context key holding the validated Claims.
const ClaimsKey = "claims"

// RequireAccessToken verifies a bearer token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
// onReject, when non-nil, is told about every rejected token.
func RequireAccessToken(c *Codec, onReject func(error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw := strings.TrimSpace(ctx.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))

		claims, err := c.Validate(tok, time.Now(), FullValidation)
		if err != nil {
			if onReject != nil {
				onReject(err)
			}
			msg := "invalid token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "token expired"
				ctx.Header("WWW-Authenticate", `Bearer error="invalid_token", error_description="token expired"`)
			}
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		id := IdentityFromClaims(claims)
		ctx.Request = ctx.Request.WithContext(WithIdentity(ctx.Request.Context(), id))

		// Also store on gin context for handler convenience.
		ctx.Set(ClaimsKey, claims)
		ctx.Set("user_id", id.UserID)

		ctx.Next()
	}
}
