package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
	"github.com/jwalitptl/therapy-scheduler/pkg/validator"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Total   *int64      `json:"total,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

// NewPageResponse carries one page of data plus the unpaged total.
func NewPageResponse(data interface{}, total int64) *Response {
	return &Response{
		Status: "success",
		Data:   data,
		Total:  &total,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// StatusOf maps an error to its HTTP status; unknown errors are 500.
func StatusOf(err error) int {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-safe text of err.
func MessageOf(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Message
	}
	return "internal server error"
}

// BindError wraps a request binding failure as a 400.
func BindError(err error) error {
	return apperrors.BadRequest(validator.Message(err), err)
}

// Abort records err on the context for the error middleware to render.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
