// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → RBAC → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth resolves the principal from the persisted user record; RBAC reads it
// from the request context.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/tenant"
)

// Context keys set by AuthMiddleware.
const (
	principalKey = "principal"
	scopeKey     = "scope"
)

// AuthMiddleware validates the session token and resolves the Principal.
//
// The token contributes only the identity key (user ID). Tier and organization
// are re-read from the persisted user record on every request, so a token
// minted before a tier change or deactivation can never grant stale access.
func AuthMiddleware(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), claims.UserID)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrIdentityNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Unknown identity",
				})
			case errors.Is(err, auth.ErrAccountInactive):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Account is deactivated",
				})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to resolve identity",
				})
			}
			return
		}

		c.Set(principalKey, principal)
		c.Set(scopeKey, tenant.NewScope(principal))
		c.Set("user_id", principal.UserID)

		c.Next()
	}
}

// PrincipalFrom returns the resolved principal for the request. The second
// return is false on unauthenticated routes.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// ScopeFrom returns the tenant scope for the request. The second return is
// false on unauthenticated routes.
func ScopeFrom(c *gin.Context) (tenant.Scope, bool) {
	v, exists := c.Get(scopeKey)
	if !exists {
		return tenant.Scope{}, false
	}
	s, ok := v.(tenant.Scope)
	return s, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
