package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listNotifications(c *gin.Context) {
	page := parsePage(c)
	items, total, err := h.inbox.List(c.Request.Context(), actorFrom(c),
		c.Query("userId"), c.Query("unread") == "true", page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paged(page, total, items))
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	n, err := h.inbox.MarkRead(c.Request.Context(), actorFrom(c), c.Param("notificationId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
