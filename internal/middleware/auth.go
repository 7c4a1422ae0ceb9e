package middleware

import (
	"context"
	"net/http"
	"strings"

	"eventreg/internal/domain"
	"eventreg/internal/pkg/authz"
	"eventreg/internal/pkg/jwt"
	"eventreg/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxUser   = "authz_user"
	ctxTenant = "authz_tenant"
)

// TenantLoader resolves the tenant named in a token.
type TenantLoader interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
}

// JWTAuth validates the bearer token and stores the resolved user and
// tenant on the context. Handlers read them with Actor and pass them on
// explicitly.
func JWTAuth(jwtService *jwt.Service, tenants TenantLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			abortUnauthorized(c, "UNAUTHORIZED", "Missing Authorization header")
			return
		}
		if !strings.HasPrefix(h, "Bearer ") {
			abortUnauthorized(c, "UNAUTHORIZED", "Invalid Authorization header")
			return
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		if tokenStr == "" {
			abortUnauthorized(c, "UNAUTHORIZED", "Empty token")
			return
		}

		if !authenticate(c, jwtService, tenants, tokenStr) {
			return
		}
		c.Next()
	}
}

// QueryTokenAuth is JWTAuth for websocket upgrades, where browsers cannot
// set headers. The token comes from ?token=.
func QueryTokenAuth(jwtService *jwt.Service, tenants TenantLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := strings.TrimSpace(c.Query("token"))
		if tokenStr == "" {
			abortUnauthorized(c, "UNAUTHORIZED", "Missing token")
			return
		}
		if !authenticate(c, jwtService, tenants, tokenStr) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtService *jwt.Service, tenants TenantLoader, tokenStr string) bool {
	claims, err := jwtService.ValidateToken(tokenStr)
	if err != nil {
		abortUnauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
		return false
	}

	tenant, err := tenants.GetByID(c.Request.Context(), claims.TenantID)
	if err != nil {
		abortUnauthorized(c, "UNKNOWN_TENANT", "Tenant not found")
		return false
	}

	c.Set(ctxUser, authz.UserContext{
		ID:          claims.UserID,
		Permissions: authz.ParsePermissions(claims.Permissions),
	})
	c.Set(ctxTenant, authz.TenantFromModel(tenant))
	c.Set("user_id", claims.UserID)
	c.Set("tenant_id", claims.TenantID)
	return true
}

// Actor returns the caller resolved by JWTAuth.
func Actor(c *gin.Context) (authz.UserContext, authz.TenantContext, bool) {
	u, okU := c.Get(ctxUser)
	t, okT := c.Get(ctxTenant)
	if !okU || !okT {
		return authz.UserContext{}, authz.TenantContext{}, false
	}
	user, okU := u.(authz.UserContext)
	tenant, okT := t.(authz.TenantContext)
	return user, tenant, okU && okT
}

func abortUnauthorized(c *gin.Context, code, message string) {
	response.Error(c, http.StatusUnauthorized, code, message)
	c.Abort()
}
