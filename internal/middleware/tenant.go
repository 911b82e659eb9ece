package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/eventrelay/internal/handler"
	"github.com/jwalitptl/eventrelay/internal/tenant"
)

const ContextTenantID = "tenant_id"

// Tenant routes the request to the tenant named by the X-Tenant-ID header.
// known reports whether a tenant is configured; authenticated callers must
// also be allowed that tenant by their token.
func Tenant(known func(id string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(tenant.HeaderName)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.NewErrorResponse("missing "+tenant.HeaderName+" header"))
			return
		}
		if claims, ok := claimsFrom(c); ok && !claims.AllowsTenant(id) {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("tenant not allowed"))
			return
		}
		if !known(id) {
			c.AbortWithStatusJSON(http.StatusNotFound, handler.NewErrorResponse("unknown tenant"))
			return
		}

		c.Set(ContextTenantID, id)
		c.Request = c.Request.WithContext(tenant.WithTenant(c.Request.Context(), id))
		c.Next()
	}
}
