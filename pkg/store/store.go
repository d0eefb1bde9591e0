// Package store persists the circulation records. EntityStore is the only
// way the rest of the module touches the database; copy counters and
// borrowing states are changed exclusively through conditional updates that
// report whether the guarded row matched.
package store

import (
	"context"
	"time"

	"libtrack/pkg/models"
)

type EntityStore interface {
	// InTx runs fn inside one database transaction. Everything fn does
	// through the store it receives commits or rolls back together.
	InTx(ctx context.Context, fn func(tx EntityStore) error) error
	Ping(ctx context.Context) error

	BookStore
	UserStore
	BorrowingStore
	NotificationStore
	AuditStore
	CatalogStore
}

type BookStore interface {
	// FindBook loads a book; forUpdate takes a row lock where the database
	// supports one.
	FindBook(ctx context.Context, id string, forUpdate bool) (*models.Book, error)
	FindBookByQR(ctx context.Context, qrCode string) (*models.Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]models.Book, int64, error)
	CreateBook(ctx context.Context, book *models.Book) error
	// DeleteBook removes a book unless an active borrowing references it.
	DeleteBook(ctx context.Context, id string) (bool, error)

	// DecrementAvailable takes one copy if any is left.
	DecrementAvailable(ctx context.Context, bookID string) (bool, error)
	// IncrementAvailable puts one copy back unless all copies are already in.
	IncrementAvailable(ctx context.Context, bookID string) (bool, error)
	// SetCopies changes copies_total while keeping the number of lent-out
	// copies. It refuses totals below that number.
	SetCopies(ctx context.Context, bookID string, total int) (bool, error)
	SetBookStatus(ctx context.Context, bookID string, status models.BookStatus) (bool, error)
	// RestoreBookStatus replaces any status with the one derived from the
	// copy counter.
	RestoreBookStatus(ctx context.Context, bookID string) (bool, error)
	// SyncBookStatuses recomputes the derived status of every book not held
	// in MAINTENANCE or LOST and returns how many rows changed.
	SyncBookStatuses(ctx context.Context) (int64, error)
}

type UserStore interface {
	FindUser(ctx context.Context, id string, forUpdate bool) (*models.User, error)
	ListUsers(ctx context.Context, page Page) ([]models.User, int64, error)
	CreateUser(ctx context.Context, user *models.User) error
	SetUserStatus(ctx context.Context, id string, status models.UserStatus) (bool, error)
}

type BorrowingStore interface {
	FindBorrowing(ctx context.Context, id string, forUpdate bool) (*models.Borrowing, error)
	CountBorrowings(ctx context.Context, filter BorrowingFilter) (int64, error)
	ListBorrowings(ctx context.Context, filter BorrowingFilter, page Page) ([]models.Borrowing, int64, error)
	CreateBorrowing(ctx context.Context, borrowing *models.Borrowing) error
	// TransitionBorrowing moves a borrowing from one status to another and
	// reports false when it was not in the from status.
	TransitionBorrowing(ctx context.Context, id string, from, to models.BorrowingStatus) (bool, error)
	// MarkReturned closes an active borrowing.
	MarkReturned(ctx context.Context, id string, at time.Time, notes string) (bool, error)
	// ExtendDue moves the due date of a BORROWED borrowing.
	ExtendDue(ctx context.Context, id string, due time.Time) (bool, error)
	// ListOverdue returns BORROWED borrowings due before now with their books.
	ListOverdue(ctx context.Context, now time.Time) ([]models.Borrowing, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	FindNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, page Page) ([]models.Notification, int64, error)
	MarkNotificationRead(ctx context.Context, id string) (bool, error)
	HasNotificationSince(ctx context.Context, userID, bookID string, typ models.NotificationType, since time.Time) (bool, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditFilter, page Page) ([]models.AuditLog, int64, error)
}

type CatalogStore interface {
	CreateShelf(ctx context.Context, shelf *models.Shelf) error
	FindShelf(ctx context.Context, id string) (*models.Shelf, error)
	ListShelves(ctx context.Context) ([]models.Shelf, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	FindCategory(ctx context.Context, id string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type BookFilter struct {
	Status     models.BookStatus
	CategoryID string
	ShelfID    string
	// Search matches title, author or ISBN.
	Search        string
	AvailableOnly bool
	Page          Page
}

type BorrowingFilter struct {
	UserID   string
	BookID   string
	Statuses []models.BorrowingStatus
}

type AuditFilter struct {
	BookID      string
	BorrowingID string
	ActorUserID string
}

type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// NewPage clamps user supplied paging to sane values.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// All is a single page large enough for internal listings.
func All() Page {
	return Page{Number: 1, Size: -1}
}
