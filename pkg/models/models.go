package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleStaff Role = "STAFF"
	RoleUser  Role = "USER"
)

// Elevated reports whether the role may act on behalf of other users.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleStaff
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleUser
}

type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserInactive  UserStatus = "INACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
)

func (s UserStatus) Valid() bool {
	return s == UserActive || s == UserInactive || s == UserSuspended
}

type BookStatus string

const (
	BookAvailable   BookStatus = "AVAILABLE"
	BookBorrowed    BookStatus = "BORROWED"
	BookMaintenance BookStatus = "MAINTENANCE"
	BookLost        BookStatus = "LOST"
)

// Manual statuses are set by staff and survive automatic recomputation.
func (s BookStatus) Manual() bool {
	return s == BookMaintenance || s == BookLost
}

func (s BookStatus) Valid() bool {
	return s == BookAvailable || s == BookBorrowed || s.Manual()
}

// DeriveBookStatus returns the status a book should carry for the given
// number of available copies. Manual statuses are returned unchanged.
func DeriveBookStatus(current BookStatus, copiesAvailable int) BookStatus {
	if current.Manual() {
		return current
	}
	if copiesAvailable > 0 {
		return BookAvailable
	}
	return BookBorrowed
}

type BorrowingStatus string

const (
	BorrowingBorrowed BorrowingStatus = "BORROWED"
	BorrowingReturned BorrowingStatus = "RETURNED"
	BorrowingOverdue  BorrowingStatus = "OVERDUE"
)

// ActiveBorrowingStatuses are the statuses of borrowings not yet returned.
var ActiveBorrowingStatuses = []BorrowingStatus{BorrowingBorrowed, BorrowingOverdue}

func (s BorrowingStatus) Active() bool {
	return s == BorrowingBorrowed || s == BorrowingOverdue
}

func (s BorrowingStatus) Valid() bool {
	return s.Active() || s == BorrowingReturned
}

type NotificationType string

const (
	NotificationOverdue  NotificationType = "OVERDUE"
	NotificationReminder NotificationType = "REMINDER"
	NotificationSystem   NotificationType = "SYSTEM"
	NotificationInfo     NotificationType = "INFO"
)

type User struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string     `gorm:"size:191;not null;uniqueIndex" json:"email"`
	FullName  string     `gorm:"size:120;not null" json:"fullName"`
	Role      Role       `gorm:"size:10;not null;default:'USER'" json:"role"`
	Status    UserStatus `gorm:"size:10;not null;default:'ACTIVE'" json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type Category struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:80;not null;uniqueIndex" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type Shelf struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string    `gorm:"size:40;not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"size:80;not null" json:"name"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Shelf) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type Book struct {
	ID              string     `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string     `gorm:"not null" json:"title"`
	Author          string     `json:"author"`
	ISBN            *string    `gorm:"size:20;uniqueIndex" json:"isbn,omitempty"`
	CategoryID      *string    `gorm:"type:uuid;index" json:"categoryId,omitempty"`
	ShelfID         *string    `gorm:"type:uuid;index" json:"shelfId,omitempty"`
	CopiesTotal     int        `gorm:"not null;check:copies_total >= 1" json:"copiesTotal"`
	CopiesAvailable int        `gorm:"not null;check:copies_available >= 0 AND copies_available <= copies_total" json:"copiesAvailable"`
	Status          BookStatus `gorm:"size:20;not null;default:'AVAILABLE';index" json:"status"`
	QRCode          string     `gorm:"size:80;uniqueIndex" json:"qrCode"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Shelf    *Shelf    `gorm:"foreignKey:ShelfID" json:"shelf,omitempty"`
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.QRCode == "" {
		b.QRCode = QRPayload(b.ID)
	}
	return nil
}

type Borrowing struct {
	ID                 string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             string          `gorm:"type:uuid;not null;index;uniqueIndex:idx_borrowings_open_pair,where:status = 'BORROWED'" json:"userId"`
	BookID             string          `gorm:"type:uuid;not null;index;uniqueIndex:idx_borrowings_open_pair,where:status = 'BORROWED'" json:"bookId"`
	BorrowDate         time.Time       `gorm:"not null" json:"borrowDate"`
	ExpectedReturnDate time.Time       `gorm:"not null;index" json:"expectedReturnDate"`
	ActualReturnDate   *time.Time      `json:"actualReturnDate,omitempty"`
	Status             BorrowingStatus `gorm:"size:20;not null;index" json:"status"`
	Notes              string          `json:"notes,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Book *Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

func (b *Borrowing) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// DaysOverdue is the number of whole days elapsed since the expected return
// date, or zero when the borrowing is not late at now.
func (b *Borrowing) DaysOverdue(now time.Time) int {
	if !now.After(b.ExpectedReturnDate) {
		return 0
	}
	return int(now.Sub(b.ExpectedReturnDate) / (24 * time.Hour))
}

type Notification struct {
	ID        string           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string           `gorm:"type:uuid;not null;index:idx_notifications_lookup" json:"userId"`
	BookID    *string          `gorm:"type:uuid;index:idx_notifications_lookup" json:"bookId,omitempty"`
	Type      NotificationType `gorm:"size:20;not null;index:idx_notifications_lookup" json:"type"`
	Title     string           `gorm:"not null" json:"title"`
	Message   string           `gorm:"not null" json:"message"`
	IsRead    bool             `gorm:"not null;default:false" json:"isRead"`
	CreatedAt time.Time        `gorm:"index" json:"createdAt"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

type AuditLog struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActorUserID string    `gorm:"size:64;not null;index" json:"actorUserId"`
	BookID      *string   `gorm:"type:uuid;index" json:"bookId,omitempty"`
	BorrowingID *string   `gorm:"type:uuid;index" json:"borrowingId,omitempty"`
	Action      string    `gorm:"size:40;not null;index" json:"action"`
	OldValue    string    `gorm:"type:text" json:"oldValue,omitempty"`
	NewValue    string    `gorm:"type:text" json:"newValue,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"timestamp"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Shelf{},
		&Book{},
		&Borrowing{},
		&Notification{},
		&AuditLog{},
	}
}
