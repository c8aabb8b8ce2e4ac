// Package handlers implements the HTTP handlers for the EdLedger API. Each
// handler type owns one resource and receives its storage dependencies through
// narrow interfaces, so tests drive the handlers with in-memory stubs. The
// rules themselves live below this layer: tenant isolation in tenant.Scope and
// the repositories, lifecycle transitions in enrollment.Machine, ledger and
// certificate invariants in ledger.Ledger. Handlers translate HTTP into those
// calls and map domain errors onto status codes.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/middleware"
	"github.com/edledger/edledger/internal/tenant"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// requestIdentity returns the principal and tenant scope resolved by the auth
// middleware. Aborts with 403 when the route was wired without it.
func requestIdentity(c *gin.Context) (auth.Principal, tenant.Scope, bool) {
	p, okP := middleware.PrincipalFrom(c)
	scope, okS := middleware.ScopeFrom(c)
	if !okP || !okS {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
		return auth.Principal{}, tenant.Scope{}, false
	}
	return p, scope, true
}

// pagination reads limit/offset query parameters with clamped defaults.
func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
