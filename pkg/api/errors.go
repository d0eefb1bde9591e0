package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"libtrack/pkg/apperr"
)

// respondError writes the JSON error envelope for err. Errors without a
// client-facing meaning are logged and reported as a generic failure.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request.Method, "path", c.FullPath(), "kind", kind, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   kind,
		"message": apperr.PublicMessage(err),
	})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		h.respondError(c, err)
		return
	}
	h.respondError(c, apperr.Validation("%s", err.Error()))
}
