package main

import (
	"context"
	"net/http"

	"identity-api/internal/account"
	"identity-api/internal/httpapi"
	"identity-api/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	accounts *account.Service
	authMW   gin.HandlerFunc
	ready    func(ctx context.Context) error
	metrics  http.Handler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := httpapi.Handlers{Accounts: d.accounts, Ready: d.ready}

	// public
	r.GET("/healthz", h.Health)
	if d.metrics != nil {
		r.GET("/metrics", gin.WrapH(d.metrics))
	}

	api := r.Group("/api/auth")
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
	}

	// protected: a valid bearer token is required from here on
	protected := api.Group("")
	protected.Use(d.authMW, rbac.RequireAuthenticated())

	// Role changes and user administration are limited to Admin/Manager.
	// Granting Admin is further restricted inside account.Service.
	admin := protected.Group("")
	admin.Use(rbac.RequireAnyRole(rbac.Elevated...))
	{
		admin.POST("/change-role", h.ChangeRole)
		admin.GET("/users", h.ListUsers)
		admin.GET("/users-with-roles", h.ListUsersWithRoles)
		admin.DELETE("/users", h.RemoveAllUsers)
		admin.GET("/me", h.Me)
	}

	// Enabling or disabling sign-in is Admin only.
	protected.POST("/users/:id/active", rbac.RequireAnyRole(rbac.RoleAdmin), h.SetActive)
}
