package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libtrack/pkg/catalog"
	"libtrack/pkg/clock"
	"libtrack/pkg/database"
	"libtrack/pkg/events"
	"libtrack/pkg/inbox"
	"libtrack/pkg/lifecycle"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
	"libtrack/pkg/sweeper"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	router *gin.Engine
	store  *store.Gorm
	clock  *clock.Manual
	admin  *models.User
	reader *models.User
}

func setupServer(t *testing.T, rps float64, burst int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	s := store.New(db)
	c := clock.NewManual(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	sink := events.NewStoreSink(s)
	dispatcher := events.NewDispatcher(sink, sink, c, discard, events.DispatcherConfig{})
	manager := lifecycle.New(s, dispatcher, lifecycle.Config{MaxBorrowDays: 14, MaxBooksPerUser: 5},
		lifecycle.WithClock(c), lifecycle.WithLogger(discard))

	ts := &testServer{store: s, clock: c}
	ts.router = NewRouter(Deps{
		Store:          s,
		Lifecycle:      manager,
		Catalog:        catalog.New(s, dispatcher, c, discard),
		Inbox:          inbox.New(s),
		Sweeper:        sweeper.New(s, manager, time.Hour, sweeper.WithClock(c), sweeper.WithLogger(discard), sweeper.WithFlusher(dispatcher)),
		Clock:          c,
		Logger:         discard,
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
	})

	ts.admin = &models.User{Email: "admin@example.com", FullName: "Admin", Role: models.RoleAdmin, Status: models.UserActive}
	ts.reader = &models.User{Email: "reader@example.com", FullName: "Reader", Role: models.RoleUser, Status: models.UserActive}
	require.NoError(t, s.CreateUser(context.Background(), ts.admin))
	require.NoError(t, s.CreateUser(context.Background(), ts.reader))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var response map[string]any
	if w.Body.Len() > 0 {
		json.Unmarshal(w.Body.Bytes(), &response)
	}
	return w, response
}

func (ts *testServer) createBook(t *testing.T, title string, copies int) string {
	t.Helper()
	w, resp := ts.do(t, http.MethodPost, "/api/v1/books", ts.admin.ID, gin.H{"title": title, "author": "Anon", "copiesTotal": copies})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return resp["id"].(string)
}

func TestHealthCheck(t *testing.T) {
	ts := setupServer(t, 100, 100)
	h := &Handler{store: ts.store, logger: discard}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/manage/health", nil)

	h.healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "UP", response["status"])
}

func TestIdentityRequired(t *testing.T) {
	ts := setupServer(t, 100, 100)

	w, resp := ts.do(t, http.MethodGet, "/api/v1/books", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", resp["error"])

	w, _ = ts.do(t, http.MethodGet, "/api/v1/books", "5d1b7a38-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp = ts.do(t, http.MethodGet, "/api/v1/me", ts.reader.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reader@example.com", resp["email"])
}

func TestStaffRoutesRejectReaders(t *testing.T) {
	ts := setupServer(t, 100, 100)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/books", ts.reader.ID, gin.H{"title": "Dune"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "PERMISSION_DENIED", resp["error"])

	w, _ = ts.do(t, http.MethodPost, "/api/v1/admin/sync-status", ts.reader.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBorrowAndReturnOverHTTP(t *testing.T) {
	ts := setupServer(t, 100, 100)
	bookID := ts.createBook(t, "Dune", 2)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/borrowings", ts.reader.ID, gin.H{"bookId": bookID, "borrowDays": 7})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "BORROWED", resp["status"])
	assert.Equal(t, ts.reader.ID, resp["userId"])
	borrowingID := resp["id"].(string)

	w, resp = ts.do(t, http.MethodPost, "/api/v1/borrowings", ts.reader.ID, gin.H{"bookId": bookID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_BORROWED", resp["error"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/books/"+bookID, ts.reader.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["copiesAvailable"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/borrowings?status=borrowed", ts.reader.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["totalElements"])
	assert.Len(t, resp["items"], 1)

	w, resp = ts.do(t, http.MethodPost, "/api/v1/borrowings/"+borrowingID+"/return", ts.reader.ID, gin.H{"notes": "slightly worn"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "RETURNED", resp["status"])

	w, resp = ts.do(t, http.MethodPost, "/api/v1/borrowings/"+borrowingID+"/return", ts.reader.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_RETURNED", resp["error"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/books/"+bookID, ts.reader.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp["copiesAvailable"])
	assert.Equal(t, "AVAILABLE", resp["status"])
}

func TestExtendOverHTTP(t *testing.T) {
	ts := setupServer(t, 100, 100)
	bookID := ts.createBook(t, "Solaris", 1)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/borrowings", ts.reader.ID, gin.H{"bookId": bookID, "borrowDays": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	borrowingID := resp["id"].(string)

	w, resp = ts.do(t, http.MethodPost, "/api/v1/borrowings/"+borrowingID+"/extend", ts.reader.ID, gin.H{"additionalDays": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	due, err := time.Parse(time.RFC3339, resp["expectedReturnDate"].(string))
	require.NoError(t, err)
	assert.True(t, due.Equal(ts.clock.Now().AddDate(0, 0, 10)))

	w, resp = ts.do(t, http.MethodPost, "/api/v1/borrowings/"+borrowingID+"/extend", ts.reader.ID, gin.H{"additionalDays": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp["error"])
}

func TestBorrowValidation(t *testing.T) {
	ts := setupServer(t, 100, 100)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/borrowings", ts.reader.ID, gin.H{"borrowDays": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp["error"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/borrowings/6f0e4b1c-0000-4000-8000-000000000000", ts.reader.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp["error"])
}

func TestNotificationsOverHTTP(t *testing.T) {
	ts := setupServer(t, 100, 100)
	bookID := ts.createBook(t, "Hyperion", 1)

	w, _ := ts.do(t, http.MethodPost, "/api/v1/borrowings", ts.reader.ID, gin.H{"bookId": bookID})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := ts.do(t, http.MethodGet, "/api/v1/notifications?unread=true", ts.reader.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, resp["totalElements"])
	item := resp["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "INFO", item["type"])

	w, resp = ts.do(t, http.MethodPost, "/api/v1/notifications/"+item["id"].(string)+"/read", ts.reader.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["isRead"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/notifications?unread=true", ts.reader.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, resp["totalElements"])

	w, _ = ts.do(t, http.MethodGet, "/api/v1/notifications?userId="+ts.admin.ID, ts.reader.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminSweepOverHTTP(t *testing.T) {
	ts := setupServer(t, 100, 100)
	bookID := ts.createBook(t, "Neuromancer", 1)

	w, _ := ts.do(t, http.MethodPost, "/api/v1/borrowings", ts.reader.ID, gin.H{"bookId": bookID, "borrowDays": 5})
	require.Equal(t, http.StatusCreated, w.Code)

	ts.clock.Advance(8 * 24 * time.Hour)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/admin/sweep", ts.admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, resp["scanned"])
	assert.EqualValues(t, 1, resp["flagged"])
	assert.EqualValues(t, 1, resp["notified"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/borrowings?status=OVERDUE&userId="+ts.reader.ID, ts.admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["totalElements"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/admin/audit?bookId="+bookID, ts.admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	actions := []string{}
	for _, e := range resp["items"].([]any) {
		actions = append(actions, e.(map[string]any)["action"].(string))
	}
	assert.Contains(t, actions, events.ActionBorrowingOverdue)
	assert.Contains(t, actions, events.ActionBookBorrowed)
}

func TestSyncStatusOverHTTP(t *testing.T) {
	ts := setupServer(t, 100, 100)
	ts.createBook(t, "Foundation", 1)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/admin/sync-status", ts.admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, resp["updated"])
}

func TestBookCatalogOverHTTP(t *testing.T) {
	ts := setupServer(t, 100, 100)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/shelves", ts.admin.ID, gin.H{"code": "a-1", "name": "Fiction"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "A-1", resp["code"])
	shelfID := resp["id"].(string)

	w, _ = ts.do(t, http.MethodPost, "/api/v1/shelves", ts.admin.ID, gin.H{"code": "A-1", "name": "Again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, resp = ts.do(t, http.MethodPost, "/api/v1/books", ts.admin.ID, gin.H{"title": "Ubik", "shelfId": shelfID, "copiesTotal": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bookID := resp["id"].(string)
	qr := resp["qrCode"].(string)

	w, resp = ts.do(t, http.MethodGet, "/api/v1/qr?code="+url.QueryEscape(qr), ts.reader.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bookID, resp["id"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/books?search=ubik&shelfId="+shelfID, ts.reader.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["totalElements"])

	w, resp = ts.do(t, http.MethodPatch, "/api/v1/books/"+bookID+"/copies", ts.admin.ID, gin.H{"copiesTotal": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, resp["copiesAvailable"])

	w, resp = ts.do(t, http.MethodPatch, "/api/v1/books/"+bookID+"/status", ts.admin.ID, gin.H{"status": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MAINTENANCE", resp["status"])

	w, _ = ts.do(t, http.MethodDelete, "/api/v1/books/"+bookID, ts.admin.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/v1/books/"+bookID, ts.reader.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUsersOverHTTP(t *testing.T) {
	ts := setupServer(t, 100, 100)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/users", ts.admin.ID, gin.H{"email": "New@Example.com", "fullName": "New Reader"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "new@example.com", resp["email"])
	assert.Equal(t, "USER", resp["role"])
	userID := resp["id"].(string)

	w, resp = ts.do(t, http.MethodPatch, "/api/v1/users/"+userID+"/status", ts.admin.ID, gin.H{"status": "SUSPENDED"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SUSPENDED", resp["status"])

	w, resp = ts.do(t, http.MethodGet, "/api/v1/users?size=2", ts.admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, resp["totalElements"])
	assert.Len(t, resp["items"], 2)

	w, _ = ts.do(t, http.MethodGet, "/api/v1/users/"+ts.admin.ID, ts.reader.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	bookID := ts.createBook(t, "Contact", 1)
	w, resp = ts.do(t, http.MethodPost, "/api/v1/borrowings", ts.admin.ID, gin.H{"userId": userID, "bookId": bookID})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "USER_INACTIVE", resp["error"])
}

func TestRateLimit(t *testing.T) {
	ts := setupServer(t, 1, 2)

	for i := 0; i < 2; i++ {
		w, _ := ts.do(t, http.MethodGet, "/api/v1/shelves", ts.reader.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, resp := ts.do(t, http.MethodGet, "/api/v1/shelves", ts.reader.ID, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", resp["error"])

	ts.clock.Advance(time.Second)
	w, _ = ts.do(t, http.MethodGet, "/api/v1/shelves", ts.reader.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	rl := newRateLimiter(1, 1, c)

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"))
	assert.Equal(t, 2, rl.size())

	c.Advance(4 * time.Minute)
	assert.True(t, rl.allow("10.0.0.3"))
	assert.Equal(t, 1, rl.size())
}

func TestUnknownRoute(t *testing.T) {
	ts := setupServer(t, 100, 100)

	w, resp := ts.do(t, http.MethodGet, "/api/v2/nothing", ts.reader.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp["error"])
}
