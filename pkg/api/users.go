package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"libtrack/pkg/catalog"
	"libtrack/pkg/models"
)

type userRequest struct {
	Email    string      `json:"email" binding:"required"`
	FullName string      `json:"fullName" binding:"required"`
	Role     models.Role `json:"role"`
}

type userStatusRequest struct {
	Status models.UserStatus `json:"status" binding:"required"`
}

func (h *Handler) getMe(c *gin.Context) {
	actor := actorFrom(c)
	user, err := h.catalog.GetUser(c.Request.Context(), actor, actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) getUser(c *gin.Context) {
	user, err := h.catalog.GetUser(c.Request.Context(), actorFrom(c), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listUsers(c *gin.Context) {
	page := parsePage(c)
	users, total, err := h.catalog.ListUsers(c.Request.Context(), actorFrom(c), page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paged(page, total, users))
}

func (h *Handler) createUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	user, err := h.catalog.CreateUser(c.Request.Context(), actorFrom(c), catalog.UserInput{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     models.Role(strings.ToUpper(string(req.Role))),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) setUserStatus(c *gin.Context) {
	var req userStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	user, err := h.catalog.SetUserStatus(c.Request.Context(), actorFrom(c), c.Param("userId"),
		models.UserStatus(strings.ToUpper(string(req.Status))))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
