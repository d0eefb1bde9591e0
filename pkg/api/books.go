package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"libtrack/pkg/catalog"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

type bookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	CategoryID  string `json:"categoryId"`
	ShelfID     string `json:"shelfId"`
	CopiesTotal int    `json:"copiesTotal"`
}

type copiesRequest struct {
	CopiesTotal int `json:"copiesTotal" binding:"required"`
}

type bookStatusRequest struct {
	Status models.BookStatus `json:"status" binding:"required"`
}

type shelfRequest struct {
	Code     string `json:"code" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
}

type categoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *Handler) listBooks(c *gin.Context) {
	page := parsePage(c)
	books, total, err := h.catalog.ListBooks(c.Request.Context(), store.BookFilter{
		Status:        models.BookStatus(strings.ToUpper(c.Query("status"))),
		CategoryID:    c.Query("categoryId"),
		ShelfID:       c.Query("shelfId"),
		Search:        c.Query("search"),
		AvailableOnly: c.Query("available") == "true",
		Page:          page,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paged(page, total, books))
}

func (h *Handler) getBook(c *gin.Context) {
	book, err := h.catalog.GetBook(c.Request.Context(), c.Param("bookId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) lookupQR(c *gin.Context) {
	book, err := h.catalog.LookupQR(c.Request.Context(), c.Query("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	book, err := h.catalog.CreateBook(c.Request.Context(), actorFrom(c), catalog.BookInput{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		CategoryID:  req.CategoryID,
		ShelfID:     req.ShelfID,
		CopiesTotal: req.CopiesTotal,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *Handler) deleteBook(c *gin.Context) {
	if err := h.catalog.DeleteBook(c.Request.Context(), actorFrom(c), c.Param("bookId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) adjustCopies(c *gin.Context) {
	var req copiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	book, err := h.catalog.AdjustCopies(c.Request.Context(), actorFrom(c), c.Param("bookId"), req.CopiesTotal)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) setBookStatus(c *gin.Context) {
	var req bookStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	book, err := h.catalog.SetBookStatus(c.Request.Context(), actorFrom(c), c.Param("bookId"),
		models.BookStatus(strings.ToUpper(string(req.Status))))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) listShelves(c *gin.Context) {
	shelves, err := h.catalog.ListShelves(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shelves)
}

func (h *Handler) createShelf(c *gin.Context) {
	var req shelfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	shelf, err := h.catalog.CreateShelf(c.Request.Context(), actorFrom(c), catalog.ShelfInput{
		Code:     req.Code,
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shelf)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), actorFrom(c), catalog.CategoryInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}
