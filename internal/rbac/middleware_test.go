package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"identity-api/internal/auth"

	"github.com/gin-gonic/gin"
)

func withRoles(userID string, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			ctx := auth.WithIdentity(c.Request.Context(), auth.Identity{UserID: userID, Roles: roles})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func serve(t *testing.T, chain ...gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	chain = append(chain, func(c *gin.Context) { c.Status(200) })
	r.GET("/x", chain...)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AllowsAnyMatchingRole(t *testing.T) {
	code := serve(t, withRoles("u", RoleUser, RoleManager), RequireAnyRole(Elevated...))
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_ForbidsOtherRoles(t *testing.T) {
	code := serve(t, withRoles("u", RoleUser), RequireAnyRole(RoleAdmin, RoleManager))
	if code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_NoRolesIsForbidden(t *testing.T) {
	code := serve(t, withRoles("u"), RequireAnyRole(RoleAdmin))
	if code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_IdentityRequired(t *testing.T) {
	code := serve(t, withRoles(""), RequireAnyRole(RoleAdmin))
	if code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireAuthenticated(t *testing.T) {
	if code := serve(t, withRoles("u"), RequireAuthenticated()); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := serve(t, withRoles(""), RequireAuthenticated()); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsKnownRole(t *testing.T) {
	for _, r := range KnownRoles() {
		if !IsKnownRole(r) {
			t.Fatalf("expected %q known", r)
		}
	}
	if IsKnownRole("admin") {
		t.Fatalf("role names are case-sensitive")
	}
}
