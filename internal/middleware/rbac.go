// Package middleware (rbac.go) implements tier-based authorization middleware.
//
// Tier capabilities are checked at request time from the principal resolved off
// the persisted user record, never from token claims. When an administrator
// changes a user's tier, the change takes effect on the user's next request
// without invalidating or reissuing their token.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/telemetry"
)

// RequireAction authorizes the resolved principal for action against its own
// organization and aborts with 403 on deny. Cross-tenant checks against
// specific rows happen in the repositories via the tenant scope; this gate
// answers "may this tier perform this operation at all".
func RequireAction(action auth.Action, policies *auth.PolicyRef) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		decision := auth.Authorize(p, action, p.OrganizationID, policies.Table())
		recordDecision(decision)
		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":  "Insufficient permissions",
				"reason": string(decision.Reason),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyAction authorizes the principal when at least one of the listed
// actions is granted. Routes that serve two capability levels use it, e.g.
// students enrolling themselves (enroll-self) next to staff enrolling on a
// student's behalf (manage-enrollments). The handler behind the gate is
// responsible for any "own resource only" narrowing the weaker grant implies.
func RequireAnyAction(policies *auth.PolicyRef, actions ...auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		table := policies.Table()
		var decision auth.Decision
		for _, action := range actions {
			decision = auth.Authorize(p, action, p.OrganizationID, table)
			if decision.Allowed {
				recordDecision(decision)
				c.Next()
				return
			}
		}

		recordDecision(decision)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":  "Insufficient permissions",
			"reason": string(decision.Reason),
		})
	}
}

// RequireSystemOwner restricts a route to system owners (cross-organization
// administration).
func RequireSystemOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || !p.IsSystemOwner {
			recordDecision(auth.Deny(auth.DenyInsufficientTier))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}
		recordDecision(auth.Allow)
		c.Next()
	}
}

func recordDecision(d auth.Decision) {
	if d.Allowed {
		telemetry.AuthzDecisionsTotal.WithLabelValues("allow", "").Inc()
		return
	}
	telemetry.AuthzDecisionsTotal.WithLabelValues("deny", reasonLabel(d.Reason)).Inc()
}

// reasonLabel maps decision reasons onto stable metric label values.
func reasonLabel(r auth.DenyReason) string {
	switch r {
	case auth.DenyCrossTenant:
		return "cross_tenant_access"
	case auth.DenyInsufficientTier:
		return "insufficient_tier"
	case auth.DenyNoMatchingPolicy:
		return "no_matching_policy"
	default:
		return "unknown"
	}
}
