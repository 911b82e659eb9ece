package jobs

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/eventrelay/internal/handler"
	"github.com/jwalitptl/eventrelay/internal/model"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

type Ledger interface {
	FindStuckExecutionIDs(ctx context.Context, jobName string, retryThreshold int) ([]int64, error)
	FindAllStuckExecutionIDs(ctx context.Context, retryThreshold int) ([]int64, error)
	MarkExecutionFailed(ctx context.Context, jobName string, executionID int64, partitionerStepName string) error
}

type Params interface {
	BusinessDateOfRunningJob(ctx context.Context, q model.RunningJobQuery) (*time.Time, error)
}

// Stores is what the job endpoints need from one tenant.
type Stores struct {
	Ledger         Ledger
	Params         Params
	RetryThreshold int
}

type Lookup func(tenantID string) (Stores, error)

type Handler struct {
	lookup       Lookup
	partitioners map[string]string
}

// NewHandler serves the job ledger of each tenant. partitioners maps a job name
// to its partitioner step, whose row survives a forced failure.
func NewHandler(lookup Lookup, partitioners map[string]string) *Handler {
	if partitioners == nil {
		partitioners = map[string]string{}
	}
	return &Handler{lookup: lookup, partitioners: partitioners}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	jobs := r.Group("/jobs")
	{
		jobs.GET("/stuck", h.ListAllStuck)
		jobs.GET("/:name/stuck", h.ListStuck)
		jobs.POST("/:name/executions/:id/fail", h.FailExecution)
		jobs.GET("/:name/running-business-date", h.RunningBusinessDate)
	}
}

func (h *Handler) stores(c *gin.Context) (Stores, bool) {
	id, err := handler.TenantID(c)
	if err != nil {
		handler.RespondError(c, err)
		return Stores{}, false
	}
	s, err := h.lookup(id)
	if err != nil {
		handler.RespondError(c, err)
		return Stores{}, false
	}
	return s, true
}

func threshold(c *gin.Context, fallback int) (int, error) {
	raw := c.Query("threshold")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.BadRequest("threshold must be a positive integer", err)
	}
	return n, nil
}

func (h *Handler) ListStuck(c *gin.Context) {
	s, ok := h.stores(c)
	if !ok {
		return
	}
	n, err := threshold(c, s.RetryThreshold)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	ids, err := s.Ledger.FindStuckExecutionIDs(c.Request.Context(), c.Param("name"), n)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"job": c.Param("name"), "executionIds": ids}))
}

func (h *Handler) ListAllStuck(c *gin.Context) {
	s, ok := h.stores(c)
	if !ok {
		return
	}
	n, err := threshold(c, s.RetryThreshold)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	ids, err := s.Ledger.FindAllStuckExecutionIDs(c.Request.Context(), n)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"executionIds": ids}))
}

func (h *Handler) FailExecution(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		handler.RespondError(c, apperrors.BadRequest("invalid execution id", err))
		return
	}
	s, ok := h.stores(c)
	if !ok {
		return
	}
	name := c.Param("name")
	if err := s.Ledger.MarkExecutionFailed(c.Request.Context(), name, id, h.partitioners[name]); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"executionId": id, "status": model.BatchStatusFailed}))
}

func (h *Handler) RunningBusinessDate(c *gin.Context) {
	var q model.RunningJobQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.RespondError(c, apperrors.BadRequest(err.Error(), err))
		return
	}
	s, ok := h.stores(c)
	if !ok {
		return
	}
	q.JobName = c.Param("name")
	date, err := s.Params.BusinessDateOfRunningJob(c.Request.Context(), q.WithDefaults())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if date == nil {
		handler.RespondError(c, apperrors.NotFound("running execution of "+q.JobName, nil))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"businessDate": date.Format(model.BusinessDateLayout)}))
}
