package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"libtrack/pkg/lifecycle"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

type borrowRequest struct {
	UserID     string `json:"userId"`
	BookID     string `json:"bookId" binding:"required"`
	BorrowDays int    `json:"borrowDays"`
	Notes      string `json:"notes"`
}

type returnRequest struct {
	Notes string `json:"notes"`
}

type extendRequest struct {
	AdditionalDays int `json:"additionalDays" binding:"required"`
}

type pagedResponse struct {
	Page          int   `json:"page"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	Items         any   `json:"items"`
}

func paged(page store.Page, total int64, items any) pagedResponse {
	return pagedResponse{Page: page.Number, PageSize: page.Size, TotalElements: total, Items: items}
}

func parsePage(c *gin.Context) store.Page {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(store.DefaultPageSize)))
	if err != nil {
		size = store.DefaultPageSize
	}
	return store.NewPage(page, size)
}

func (h *Handler) borrow(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	actor := actorFrom(c)
	if req.UserID == "" {
		req.UserID = actor.ID
	}

	borrowing, err := h.lifecycle.Borrow(c.Request.Context(), actor, lifecycle.BorrowRequest{
		UserID:     req.UserID,
		BookID:     req.BookID,
		BorrowDays: req.BorrowDays,
		Notes:      req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, borrowing)
}

func (h *Handler) listBorrowings(c *gin.Context) {
	var statuses []models.BorrowingStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, models.BorrowingStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	page := parsePage(c)

	items, total, err := h.lifecycle.List(c.Request.Context(), actorFrom(c), lifecycle.ListQuery{
		UserID:   c.Query("userId"),
		BookID:   c.Query("bookId"),
		Statuses: statuses,
		Page:     page,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paged(page, total, items))
}

func (h *Handler) getBorrowing(c *gin.Context) {
	borrowing, err := h.lifecycle.Get(c.Request.Context(), actorFrom(c), c.Param("borrowingId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *Handler) returnBook(c *gin.Context) {
	var req returnRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	borrowing, err := h.lifecycle.Return(c.Request.Context(), actorFrom(c), c.Param("borrowingId"), req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *Handler) extendBorrowing(c *gin.Context) {
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	borrowing, err := h.lifecycle.Extend(c.Request.Context(), actorFrom(c), c.Param("borrowingId"), req.AdditionalDays)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}
