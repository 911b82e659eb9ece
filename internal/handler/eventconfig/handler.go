package eventconfig

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/eventrelay/internal/handler"
	"github.com/jwalitptl/eventrelay/internal/model"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

type ConfigService interface {
	Get(ctx context.Context, eventType string) (*model.EventTypeConfiguration, error)
	List(ctx context.Context) ([]*model.EventTypeConfiguration, error)
	SetMany(ctx context.Context, changes map[string]bool) (map[string]bool, error)
}

// Lookup resolves the configuration service of a tenant.
type Lookup func(tenantID string) (ConfigService, error)

type Handler struct {
	lookup Lookup
}

func NewHandler(lookup Lookup) *Handler {
	return &Handler{lookup: lookup}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	configs := r.Group("/externalevents/configuration")
	{
		configs.GET("", h.ListConfigurations)
		configs.GET("/:type", h.GetConfiguration)
		configs.PUT("", h.UpdateConfigurations)
	}
}

func (h *Handler) service(c *gin.Context) (ConfigService, bool) {
	id, err := handler.TenantID(c)
	if err != nil {
		handler.RespondError(c, err)
		return nil, false
	}
	svc, err := h.lookup(id)
	if err != nil {
		handler.RespondError(c, err)
		return nil, false
	}
	return svc, true
}

func (h *Handler) ListConfigurations(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	configs, err := svc.List(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"eventConfiguration": configs}))
}

func (h *Handler) GetConfiguration(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	cfg, err := svc.Get(c.Request.Context(), c.Param("type"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}

func (h *Handler) UpdateConfigurations(c *gin.Context) {
	var req model.EventConfigurationUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	svc, ok := h.service(c)
	if !ok {
		return
	}
	changes, err := svc.SetMany(c.Request.Context(), req.ExternalEventConfigurations)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.EventConfigurationChanges{Changes: changes}))
}
