package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"claims_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCapabilityTable(t *testing.T) {
	assert.True(t, Can(RoleFarmer, CapClaimCreate))
	assert.False(t, Can(RoleFarmer, CapClaimDecide))
	assert.True(t, Can(RoleInsurer, CapClaimPayout))
	assert.False(t, Can(RoleInsurer, CapClaimReview))
	assert.True(t, Can(RoleAdmin, CapClaimReview))
	assert.True(t, Can(RoleSuperAdmin, CapAITaskOperate))
	assert.True(t, Can(RoleAdmin, CapClaimFlagFraud))
	assert.False(t, Can(RoleAdmin, CapClaimPayout))
	assert.False(t, Can(Role("auditor"), CapClaimReadAny))
}

func TestPrincipalDropsUnknownRoles(t *testing.T) {
	p := PrincipalFrom([]string{"farmer", "root", "ADMIN"})
	assert.Equal(t, []Role{RoleFarmer}, p.Roles)
	assert.False(t, p.IsAdmin())
	assert.True(t, PrincipalFrom([]string{"super_admin"}).IsAdmin())
}

func TestRequireCapability(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Role"); role != "" {
			httpkit.SetIdentity(c, uuid.New(), []string{role})
		}
	})
	engine.POST("/claims", RequireCapability(CapClaimCreate), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	cases := []struct {
		role string
		want int
	}{
		{"farmer", http.StatusCreated},
		{"insurer", http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/claims", nil)
		if tc.role != "" {
			req.Header.Set("X-Role", tc.role)
		}
		engine.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.role)
	}
}
