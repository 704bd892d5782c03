package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

const codeInternal = "InternalError"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status of its kind. Errors outside the
// domain taxonomy become a 500 without leaking their text.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var de *domain.Error
	if !errors.As(err, &de) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: codeInternal})
		return
	}
	c.AbortWithStatusJSON(statusFor(de.Kind), errorResponse{Error: de.Error(), Code: de.Code})
}

func bindError(c *gin.Context, err error) {
	writeError(c, domain.NewValidationError("%s", err.Error()))
}
