package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"task-manager/internal/service"
	"task-manager/internal/validation"
)

const msgInvalidBody = "Invalid form data. Please check your inputs."

// actionResponse is the single shape every endpoint answers with.
type actionResponse struct {
	Success bool                   `json:"success,omitempty"`
	Data    interface{}            `json:"data,omitempty"`
	Message string                 `json:"message,omitempty"`
	Errors  validation.FieldErrors `json:"errors,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, actionResponse{Success: true, Data: data})
}

// respondError writes err using the message of its operation error.
func respondError(c *gin.Context, err error) {
	var opErr *service.OpError
	if !errors.As(err, &opErr) {
		c.JSON(http.StatusInternalServerError, actionResponse{Message: msgInternal})
		return
	}
	c.JSON(statusFor(opErr.Kind), actionResponse{Message: opErr.Message, Errors: opErr.Fields})
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindInvalidCategory:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
