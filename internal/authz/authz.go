// Package authz holds the closed role set and the capability table that
// decides which role may perform which claim action.
package authz

import (
	"net/http"

	"claims_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Role is one of the identity roles recognised by the pipeline.
type Role string

const (
	RoleFarmer     Role = "farmer"
	RoleInsurer    Role = "insurer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Capability names an action guarded at the HTTP boundary.
type Capability string

const (
	CapClaimCreate       Capability = "claim:create"
	CapClaimReadOwn      Capability = "claim:read:own"
	CapClaimCancel       Capability = "claim:cancel"
	CapClaimReadAssigned Capability = "claim:read:assigned"
	CapClaimReport       Capability = "claim:report"
	CapClaimDecide       Capability = "claim:decide"
	CapClaimFlagFraud    Capability = "claim:flag_fraud"
	CapClaimPayout       Capability = "claim:payout"
	CapClaimReadAny      Capability = "claim:read:any"
	CapClaimReview       Capability = "claim:review"
	CapClaimOverrideAI   Capability = "claim:override_ai"
	CapAITaskOperate     Capability = "ai_task:operate"
	CapClaimAuditFraud   Capability = "claim:audit_fraud"
)

var adminCapabilities = []Capability{
	CapClaimReadAny, CapClaimReview, CapClaimOverrideAI, CapAITaskOperate, CapClaimAuditFraud, CapClaimFlagFraud,
}

var capabilities = map[Role][]Capability{
	RoleFarmer:     {CapClaimCreate, CapClaimReadOwn, CapClaimCancel},
	RoleInsurer:    {CapClaimReadAssigned, CapClaimReport, CapClaimDecide, CapClaimFlagFraud, CapClaimPayout},
	RoleAdmin:      adminCapabilities,
	RoleSuperAdmin: adminCapabilities,
}

// ParseRole maps a token role string onto the closed set.
func ParseRole(value string) (Role, bool) {
	role := Role(value)
	_, ok := capabilities[role]
	return role, ok
}

// Can reports whether role grants capability.
func Can(role Role, capability Capability) bool {
	for _, c := range capabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// Principal is the acting identity reduced to what services need.
type Principal struct {
	Roles []Role
}

// PrincipalFrom keeps only recognised roles; unknown strings are dropped.
func PrincipalFrom(roles []string) Principal {
	p := Principal{Roles: make([]Role, 0, len(roles))}
	for _, r := range roles {
		if role, ok := ParseRole(r); ok {
			p.Roles = append(p.Roles, role)
		}
	}
	return p
}

// Can reports whether any of the principal's roles grants capability.
func (p Principal) Can(capability Capability) bool {
	for _, role := range p.Roles {
		if Can(role, capability) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal may act on any claim.
func (p Principal) IsAdmin() bool {
	return p.Can(CapClaimReadAny)
}

// RequireCapability admits requests whose identity grants one of caps.
func RequireCapability(caps ...Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := httpkit.MustGetIdentity(c)
		if id == nil {
			return
		}
		principal := PrincipalFrom(id.Roles())
		for _, capability := range caps {
			if principal.Can(capability) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, httpkit.ErrorResponse{Error: "forbidden", Code: "FORBIDDEN"})
	}
}
