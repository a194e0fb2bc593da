package audit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/therapy-scheduler/internal/handler"
	"github.com/jwalitptl/therapy-scheduler/internal/middleware"
	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/service/rbac"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
)

// HistoryReader is implemented by audit.Service.
type HistoryReader interface {
	History(ctx context.Context, entityType string, entityID int64) ([]*model.AuditLog, error)
}

type Handler struct {
	service HistoryReader
}

func NewHandler(service HistoryReader) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	audit := r.Group("/audit", auth.RequireCapability(rbac.AuditRead))
	{
		audit.GET("/logs/entity/:type/:id", h.GetEntityLogs)
	}
}

func (h *Handler) GetEntityLogs(c *gin.Context) {
	entityType := c.Param("type")
	if entityType != model.AuditEntityAppointment {
		handler.Abort(c, apperrors.BadRequest(fmt.Sprintf("unknown entity type %q", entityType), nil))
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		handler.Abort(c, apperrors.BadRequest("invalid entity ID", err))
		return
	}

	logs, err := h.service.History(c.Request.Context(), entityType, id)
	if err != nil {
		handler.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}
