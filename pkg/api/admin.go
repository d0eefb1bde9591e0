package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"libtrack/pkg/circuitbreaker"
	"libtrack/pkg/store"
	"libtrack/pkg/sweeper"
)

func (h *Handler) syncStatus(c *gin.Context) {
	updated, err := h.lifecycle.SyncBookStatus(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("book statuses synchronised", "updated", updated, "actor_id", actorFrom(c).ID)
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) runSweep(c *gin.Context) {
	res, err := h.sweeper.Tick(c.Request.Context())
	switch {
	case errors.Is(err, sweeper.ErrSkipped):
		c.JSON(http.StatusConflict, gin.H{"error": "SWEEP_RUNNING", "message": "an overdue sweep is already running"})
		return
	case errors.Is(err, circuitbreaker.ErrOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "SWEEP_SUSPENDED", "message": "overdue sweeps are paused after repeated store failures"})
		return
	case err != nil:
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scanned":  res.Scanned,
		"flagged":  res.Flagged,
		"notified": res.Notified,
		"failed":   res.Failed,
	})
}

func (h *Handler) listAudit(c *gin.Context) {
	page := parsePage(c)
	entries, total, err := h.store.ListAuditLogs(c.Request.Context(), store.AuditFilter{
		BookID:      c.Query("bookId"),
		BorrowingID: c.Query("borrowingId"),
		ActorUserID: c.Query("actorId"),
	}, page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paged(page, total, entries))
}

func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
