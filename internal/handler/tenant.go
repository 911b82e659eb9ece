package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/eventrelay/internal/tenant"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

// TenantID returns the tenant the request was routed to.
func TenantID(c *gin.Context) (string, error) {
	id, ok := tenant.FromContext(c.Request.Context())
	if !ok {
		return "", apperrors.BadRequest("missing "+tenant.HeaderName+" header", nil)
	}
	return id, nil
}
