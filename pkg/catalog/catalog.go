// Package catalog manages the records around circulation: books, shelves,
// categories and users. Copy counters are changed only through the
// inventory ledger.
package catalog

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"libtrack/pkg/apperr"
	"libtrack/pkg/clock"
	"libtrack/pkg/events"
	"libtrack/pkg/inventory"
	"libtrack/pkg/lifecycle"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

type Auditor interface {
	Audit(ctx context.Context, e events.AuditEvent)
}

type Service struct {
	store   store.EntityStore
	auditor Auditor
	clock   clock.Clock
	logger  *slog.Logger
}

func New(s store.EntityStore, auditor Auditor, c clock.Clock, logger *slog.Logger) *Service {
	return &Service{store: s, auditor: auditor, clock: c, logger: logger}
}

type BookInput struct {
	Title       string
	Author      string
	ISBN        string
	CategoryID  string
	ShelfID     string
	CopiesTotal int
}

type ShelfInput struct {
	Code     string
	Name     string
	Location string
}

type CategoryInput struct {
	Name        string
	Description string
}

type UserInput struct {
	Email    string
	FullName string
	Role     models.Role
}

func requireStaff(actor lifecycle.Actor) error {
	if !actor.Role.Elevated() {
		return apperr.New(apperr.KindPermissionDenied, "this operation requires the STAFF or ADMIN role")
	}
	return nil
}

func (s *Service) audit(ctx context.Context, actor lifecycle.Actor, action, bookID string, oldValue, newValue any) {
	s.auditor.Audit(ctx, events.AuditEvent{
		ActorID:  actor.ID,
		Action:   action,
		BookID:   bookID,
		OldValue: oldValue,
		NewValue: newValue,
		At:       s.clock.Now(),
	})
}

// Books

func (s *Service) CreateBook(ctx context.Context, actor lifecycle.Actor, in BookInput) (*models.Book, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.ISBN = strings.TrimSpace(in.ISBN)
	if in.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.CopiesTotal == 0 {
		in.CopiesTotal = 1
	}
	if in.CopiesTotal < 1 {
		return nil, apperr.Validation("copiesTotal must be at least 1")
	}

	book := &models.Book{
		Title:           in.Title,
		Author:          strings.TrimSpace(in.Author),
		CopiesTotal:     in.CopiesTotal,
		CopiesAvailable: in.CopiesTotal,
		Status:          models.BookAvailable,
	}
	if in.ISBN != "" {
		book.ISBN = &in.ISBN
	}
	if in.CategoryID != "" {
		if _, err := s.store.FindCategory(ctx, in.CategoryID); err != nil {
			return nil, err
		}
		book.CategoryID = &in.CategoryID
	}
	if in.ShelfID != "" {
		if _, err := s.store.FindShelf(ctx, in.ShelfID); err != nil {
			return nil, err
		}
		book.ShelfID = &in.ShelfID
	}

	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, err
	}
	s.logger.Info("book created", "book_id", book.ID, "title", book.Title, "actor_id", actor.ID)
	s.audit(ctx, actor, events.ActionBookCreated, book.ID, nil, book)
	return s.store.FindBook(ctx, book.ID, false)
}

func (s *Service) GetBook(ctx context.Context, id string) (*models.Book, error) {
	return s.store.FindBook(ctx, id, false)
}

// LookupQR resolves a scanned QR label, or a bare book id, to its book.
func (s *Service) LookupQR(ctx context.Context, payload string) (*models.Book, error) {
	id, ok := models.ParseQRPayload(payload)
	if !ok {
		return nil, apperr.Validation("%q is not a book label", payload)
	}
	return s.store.FindBookByQR(ctx, models.QRPayload(id))
}

func (s *Service) ListBooks(ctx context.Context, filter store.BookFilter) ([]models.Book, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperr.Validation("unknown book status %q", filter.Status)
	}
	return s.store.ListBooks(ctx, filter)
}

// DeleteBook removes a book that has no active borrowings. Its borrowing
// history stays in place.
func (s *Service) DeleteBook(ctx context.Context, actor lifecycle.Actor, id string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}

	var deleted *models.Book
	err := s.store.InTx(ctx, func(tx store.EntityStore) error {
		book, err := tx.FindBook(ctx, id, true)
		if err != nil {
			return err
		}
		ok, err := tx.DeleteBook(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.KindConflict, "%q still has copies on loan", book.Title)
		}
		deleted = book
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("book deleted", "book_id", id, "actor_id", actor.ID)
	s.audit(ctx, actor, events.ActionBookDeleted, id, deleted, nil)
	return nil
}

func (s *Service) AdjustCopies(ctx context.Context, actor lifecycle.Actor, id string, total int) (*models.Book, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var before, after *models.Book
	err := s.store.InTx(ctx, func(tx store.EntityStore) error {
		var err error
		if before, err = tx.FindBook(ctx, id, true); err != nil {
			return err
		}
		after, err = inventory.New(tx).AdjustCopies(ctx, id, total)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, events.ActionBookCopiesAdjusted, id,
		map[string]int{"copiesTotal": before.CopiesTotal, "copiesAvailable": before.CopiesAvailable},
		map[string]int{"copiesTotal": after.CopiesTotal, "copiesAvailable": after.CopiesAvailable})
	return after, nil
}

func (s *Service) SetBookStatus(ctx context.Context, actor lifecycle.Actor, id string, status models.BookStatus) (*models.Book, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var before, after *models.Book
	err := s.store.InTx(ctx, func(tx store.EntityStore) error {
		var err error
		if before, err = tx.FindBook(ctx, id, true); err != nil {
			return err
		}
		after, err = inventory.New(tx).SetStatus(ctx, id, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	if before.Status != after.Status {
		s.logger.Info("book status changed", "book_id", id, "from", before.Status, "to", after.Status)
		s.audit(ctx, actor, events.ActionBookStatusChanged, id,
			map[string]any{"status": before.Status}, map[string]any{"status": after.Status})
	}
	return after, nil
}

// Shelves and categories

func (s *Service) CreateShelf(ctx context.Context, actor lifecycle.Actor, in ShelfInput) (*models.Shelf, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	shelf := &models.Shelf{
		Code:     strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:     strings.TrimSpace(in.Name),
		Location: strings.TrimSpace(in.Location),
	}
	if shelf.Code == "" || shelf.Name == "" {
		return nil, apperr.Validation("shelf code and name are required")
	}
	if err := s.store.CreateShelf(ctx, shelf); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, events.ActionShelfCreated, "", nil, shelf)
	return shelf, nil
}

func (s *Service) ListShelves(ctx context.Context) ([]models.Shelf, error) {
	return s.store.ListShelves(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, actor lifecycle.Actor, in CategoryInput) (*models.Category, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	category := &models.Category{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
	}
	if category.Name == "" {
		return nil, apperr.Validation("category name is required")
	}
	if err := s.store.CreateCategory(ctx, category); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, events.ActionCategoryCreated, "", nil, category)
	return category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

// Users

func (s *Service) CreateUser(ctx context.Context, actor lifecycle.Actor, in UserInput) (*models.User, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, apperr.Validation("unknown role %q", in.Role)
	}
	if in.Role == models.RoleAdmin && actor.Role != models.RoleAdmin {
		return nil, apperr.New(apperr.KindPermissionDenied, "only admins may create admins")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, apperr.Validation("email %q is not valid", in.Email)
	}
	user := &models.User{
		Email:    strings.ToLower(addr.Address),
		FullName: strings.TrimSpace(in.FullName),
		Role:     in.Role,
		Status:   models.UserActive,
	}
	if user.FullName == "" {
		return nil, apperr.Validation("fullName is required")
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "role", user.Role, "actor_id", actor.ID)
	s.audit(ctx, actor, events.ActionUserCreated, "", nil, map[string]any{"userId": user.ID, "role": user.Role})
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, actor lifecycle.Actor, id string) (*models.User, error) {
	if !actor.CanActFor(id) {
		return nil, apperr.New(apperr.KindPermissionDenied, "only staff may view other users")
	}
	return s.store.FindUser(ctx, id, false)
}

func (s *Service) ListUsers(ctx context.Context, actor lifecycle.Actor, page store.Page) ([]models.User, int64, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	return s.store.ListUsers(ctx, page)
}

func (s *Service) SetUserStatus(ctx context.Context, actor lifecycle.Actor, id string, status models.UserStatus) (*models.User, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Validation("unknown user status %q", status)
	}
	ok, err := s.store.SetUserStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("User", id)
	}
	s.audit(ctx, actor, events.ActionUserStatusChanged, "", nil, map[string]any{"userId": id, "status": status})
	return s.store.FindUser(ctx, id, false)
}
