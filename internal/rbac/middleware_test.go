package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"callcenter-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithIdentity(t *testing.T, userID, accountID, role string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, accountID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAccount(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serveWithIdentity(t, "u", "a", RoleSuperAdmin, RoleAdmin); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesUnlistedRole(t *testing.T) {
	if code := serveWithIdentity(t, "u", "a", RoleAgent, RoleAdmin, RoleSupervisor); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAccount_MissingAccount(t *testing.T) {
	if code := serveWithIdentity(t, "u", "", RoleAdmin, RoleAdmin); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}
