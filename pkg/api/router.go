// Package api exposes the circulation core over HTTP with gin.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"libtrack/pkg/catalog"
	"libtrack/pkg/clock"
	"libtrack/pkg/inbox"
	"libtrack/pkg/lifecycle"
	"libtrack/pkg/store"
	"libtrack/pkg/sweeper"
)

type Deps struct {
	Store     store.EntityStore
	Lifecycle *lifecycle.Manager
	Catalog   *catalog.Service
	Inbox     *inbox.Service
	Sweeper   *sweeper.Sweeper
	Clock     clock.Clock
	Logger    *slog.Logger

	RateLimitRPS   float64
	RateLimitBurst int
}

type Handler struct {
	store     store.EntityStore
	lifecycle *lifecycle.Manager
	catalog   *catalog.Service
	inbox     *inbox.Service
	sweeper   *sweeper.Sweeper
	logger    *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	h := &Handler{
		store:     d.Store,
		lifecycle: d.Lifecycle,
		catalog:   d.Catalog,
		inbox:     d.Inbox,
		sweeper:   d.Sweeper,
		logger:    d.Logger,
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}

	r := gin.New()
	r.Use(h.requestLogger(), h.recoverPanic())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "the requested resource could not be found"})
	})

	r.GET("/manage/health", h.healthCheck)

	limiter := newRateLimiter(d.RateLimitRPS, d.RateLimitBurst, d.Clock)
	v1 := r.Group("/api/v1", limiter.middleware(), h.identify())
	{
		v1.GET("/me", h.getMe)

		v1.POST("/borrowings", h.borrow)
		v1.GET("/borrowings", h.listBorrowings)
		v1.GET("/borrowings/:borrowingId", h.getBorrowing)
		v1.POST("/borrowings/:borrowingId/return", h.returnBook)
		v1.POST("/borrowings/:borrowingId/extend", h.extendBorrowing)

		v1.GET("/books", h.listBooks)
		v1.GET("/books/:bookId", h.getBook)
		v1.GET("/qr", h.lookupQR)
		v1.GET("/shelves", h.listShelves)
		v1.GET("/categories", h.listCategories)

		v1.GET("/notifications", h.listNotifications)
		v1.POST("/notifications/:notificationId/read", h.markNotificationRead)

		v1.GET("/users/:userId", h.getUser)

		staff := v1.Group("", h.requireStaff())
		staff.POST("/books", h.createBook)
		staff.DELETE("/books/:bookId", h.deleteBook)
		staff.PATCH("/books/:bookId/copies", h.adjustCopies)
		staff.PATCH("/books/:bookId/status", h.setBookStatus)
		staff.POST("/shelves", h.createShelf)
		staff.POST("/categories", h.createCategory)
		staff.GET("/users", h.listUsers)
		staff.POST("/users", h.createUser)
		staff.PATCH("/users/:userId/status", h.setUserStatus)

		staff.POST("/admin/sync-status", h.syncStatus)
		staff.POST("/admin/sweep", h.runSweep)
		staff.GET("/admin/audit", h.listAudit)
	}
	return r
}
