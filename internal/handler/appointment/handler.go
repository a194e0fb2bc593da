package appointment

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/therapy-scheduler/internal/handler"
	"github.com/jwalitptl/therapy-scheduler/internal/middleware"
	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/service/appointment"
	"github.com/jwalitptl/therapy-scheduler/internal/service/rbac"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
)

type Handler struct {
	service appointment.AppointmentServicer
}

func NewHandler(service appointment.AppointmentServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	r.POST("/appointment", auth.RequireCapability(rbac.AppointmentCreate), h.CreateAppointment)
	r.GET("/appointments", auth.RequireCapability(rbac.AppointmentRead), h.ListAppointments)
	r.GET("/appointments/deleted", auth.RequireCapability(rbac.AppointmentRestore), h.ListDeletedAppointments)
	r.GET("/appointment/:id", auth.RequireCapability(rbac.AppointmentRead), h.GetAppointment)
	r.PATCH("/appointment/:id", auth.RequireCapability(rbac.AppointmentUpdate), h.UpdateAppointment)
	r.DELETE("/appointment/:id", auth.RequireCapability(rbac.AppointmentDelete), h.DeleteAppointment)
	r.POST("/appointment/:id/restore", auth.RequireCapability(rbac.AppointmentRestore), h.RestoreAppointment)
	r.DELETE("/appointment/:id/permanent", auth.RequireCapability(rbac.AppointmentPurge), h.PurgeAppointment)
}

func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.BadRequest("invalid appointment ID", err)
	}
	return id, nil
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Abort(c, handler.BindError(err))
		return
	}

	details, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(details))
}

func (h *Handler) ListAppointments(c *gin.Context) {
	var req model.ListAppointmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		handler.Abort(c, handler.BindError(err))
		return
	}

	page, err := h.service.List(c.Request.Context(), &req)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewPageResponse(page.Data, page.Total))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	details, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(details))
}

// UpdateAppointment credits the change to the calling team member unless the
// body names someone else.
func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	var req model.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Abort(c, handler.BindError(err))
		return
	}

	if req.ModifiedByID == nil {
		if caller, err := middleware.CallerFromContext(c); err == nil {
			req.ModifiedByID = caller.TherapistID
		}
	}

	details, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(details))
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	if err := h.service.SoftDelete(c.Request.Context(), id); err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id}))
}

func (h *Handler) RestoreAppointment(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	details, err := h.service.Restore(c.Request.Context(), id)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(details))
}

func (h *Handler) PurgeAppointment(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	if err := h.service.PermanentDelete(c.Request.Context(), id); err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id}))
}

func (h *Handler) ListDeletedAppointments(c *gin.Context) {
	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		handler.Abort(c, handler.BindError(err))
		return
	}

	result, err := h.service.ListDeleted(c.Request.Context(), page)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewPageResponse(result.Data, result.Total))
}
