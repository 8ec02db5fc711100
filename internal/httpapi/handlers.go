package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"identity-api/internal/account"
	"identity-api/internal/auth"
	"identity-api/internal/users"
	"identity-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call account.Service, return JSON.
type Handlers struct {
	Accounts *account.Service

	// Ready reports backend health for /healthz. Nil means always healthy.
	Ready func(ctx context.Context) error
}

// --- Registration / login ---

type registerRequest struct {
	Email     string   `json:"email" binding:"required"`
	Password  string   `json:"password" binding:"required"`
	FirstName string   `json:"first_name" binding:"max=100"`
	LastName  string   `json:"last_name" binding:"max=100"`
	Roles     []string `json:"roles" binding:"omitempty,max=3,dive,required"`
}

func (h Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	p, err := h.Accounts.Register(c.Request.Context(), account.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Roles:     req.Roles,
	}, c.ClientIP())
	if errors.Is(err, account.ErrRoleAssignment) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "user registration succeeded, but assigning roles failed",
			"user":  p,
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user registered, please login", "user": p})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}

	res, err := h.Accounts.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": res.Token,
		"token_type":   "Bearer",
		"expires_at":   res.ExpiresAt.Format(time.RFC3339),
		"roles":        res.Roles,
		"user":         res.Profile,
	})
}

// --- Administration ---

type changeRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

func (h Handlers) ChangeRole(c *gin.Context) {
	actor, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}

	if err := h.Accounts.ChangeRole(c.Request.Context(), actor, req.UserID, req.Role, c.ClientIP()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role changed"})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive enables or disables sign-in for the user in the :id path segment.
func (h Handlers) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "active required"})
		return
	}
	if err := h.Accounts.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user updated", "user_id": c.Param("id"), "is_active": *req.Active})
}

func (h Handlers) ListUsers(c *gin.Context) {
	out, err := h.Accounts.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h Handlers) ListUsersWithRoles(c *gin.Context) {
	out, err := h.Accounts.ListUsersWithRoles(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h Handlers) RemoveAllUsers(c *gin.Context) {
	actor, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	n, err := h.Accounts.RemoveAllUsers(c.Request.Context(), actor, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all other users have been removed", "removed": n})
}

// Me echoes the caller's validated claims.
func (h Handlers) Me(c *gin.Context) {
	v, ok := c.Get(auth.ClaimsKey)
	claims, isClaims := v.(auth.Claims)
	if !ok || !isClaims {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	resp := gin.H{
		"user_id":  claims.Subject,
		"email":    claims.Email,
		"roles":    []string(claims.Roles),
		"token_id": claims.ID,
		"issuer":   claims.Issuer,
		"audience": claims.Audience,
	}
	if claims.ExpiresAt != nil {
		resp["expires_at"] = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (h Handlers) Health(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	var rl *account.RateLimitError
	var ve *users.ValidationError

	switch {
	case errors.As(err, &rl):
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, try again later"})
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": ve.Problems})
	case errors.Is(err, account.ErrValidation), errors.Is(err, account.ErrInvalidRole):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, account.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, account.ErrInactive):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user is inactive, please contact your admin"})
	case errors.Is(err, account.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, account.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, account.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "user with this email already exists"})
	case errors.Is(err, account.ErrLastAdmin):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "the last Admin cannot be demoted"})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
