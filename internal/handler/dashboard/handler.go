package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/therapy-scheduler/internal/handler"
	"github.com/jwalitptl/therapy-scheduler/internal/middleware"
	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/service/dashboard"
	"github.com/jwalitptl/therapy-scheduler/internal/service/rbac"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
)

type Handler struct {
	service dashboard.DashboardServicer
}

func NewHandler(service dashboard.DashboardServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	d := r.Group("/dashboard", auth.RequireCapability(rbac.DashboardRead))
	{
		d.GET("/stats", h.GetStats)
		d.GET("/distribution", h.GetDistribution)
		d.GET("/calendar", h.GetCalendar)
		d.GET("/branches-summary", h.GetBranchesSummary)
		d.GET("/patients-insights", h.GetPatientsInsights)
		d.GET("/totals", h.GetTotals)
	}
}

func bindQuery(c *gin.Context) (model.DashboardQuery, bool) {
	var q model.DashboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.Abort(c, handler.BindError(err))
		return q, false
	}
	return q, true
}

func (h *Handler) GetStats(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), q)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

func (h *Handler) GetDistribution(c *gin.Context) {
	var q model.DistributionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.Abort(c, handler.BindError(err))
		return
	}

	dist, err := h.service.Distribution(c.Request.Context(), q)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(dist))
}

func (h *Handler) GetCalendar(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}

	events, err := h.service.Calendar(c.Request.Context(), q)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(events))
}

func (h *Handler) GetBranchesSummary(c *gin.Context) {
	caller, err := middleware.CallerFromContext(c)
	if err != nil {
		handler.Abort(c, apperrors.Unauthorized(err))
		return
	}

	q, ok := bindQuery(c)
	if !ok {
		return
	}

	summary, err := h.service.BranchesSummary(c.Request.Context(), caller, q)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(summary))
}

func (h *Handler) GetPatientsInsights(c *gin.Context) {
	insights, err := h.service.PatientsInsights(c.Request.Context())
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(insights))
}

func (h *Handler) GetTotals(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}

	totals, err := h.service.Totals(c.Request.Context(), q)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(totals))
}
