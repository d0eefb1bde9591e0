package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"libtrack/pkg/models"
)

// Gorm is the EntityStore backed by a gorm connection or transaction.
type Gorm struct {
	db *gorm.DB
}

var _ EntityStore = (*Gorm)(nil)

func New(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) InTx(ctx context.Context, fn func(tx EntityStore) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
	return classify(err, "")
}

func (s *Gorm) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify(err, "")
	}
	return classify(sqlDB.PingContext(ctx), "")
}

func (s *Gorm) query(ctx context.Context, forUpdate bool) *gorm.DB {
	q := s.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// Books

// derivedStatusSQL computes the status for a copy count given by countSQL,
// leaving caller-controlled statuses alone. SET clauses read pre-update
// values, so countSQL must spell out the new count.
func derivedStatusSQL(countSQL string) string {
	return "CASE WHEN status IN (?, ?) THEN status WHEN " + countSQL + " > 0 THEN ? ELSE ? END"
}

// derivedStatusArgs binds the placeholders of derivedStatusSQL in order;
// countArgs are the ones inside countSQL.
func derivedStatusArgs(countArgs ...interface{}) []interface{} {
	args := []interface{}{models.BookMaintenance, models.BookLost}
	args = append(args, countArgs...)
	return append(args, models.BookAvailable, models.BookBorrowed)
}

func (s *Gorm) FindBook(ctx context.Context, id string, forUpdate bool) (*models.Book, error) {
	var book models.Book
	q := s.query(ctx, forUpdate)
	if !forUpdate {
		q = q.Preload("Category").Preload("Shelf")
	}
	if err := q.Where("id = ?", id).First(&book).Error; err != nil {
		return nil, notFound(err, "Book", id)
	}
	return &book, nil
}

func (s *Gorm) FindBookByQR(ctx context.Context, qrCode string) (*models.Book, error) {
	var book models.Book
	err := s.db.WithContext(ctx).Preload("Category").Preload("Shelf").
		Where("qr_code = ?", qrCode).First(&book).Error
	if err != nil {
		return nil, notFound(err, "Book", qrCode)
	}
	return &book, nil
}

func (s *Gorm) ListBooks(ctx context.Context, filter BookFilter) ([]models.Book, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Book{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CategoryID != "" {
		query = query.Where("category_id = ?", filter.CategoryID)
	}
	if filter.ShelfID != "" {
		query = query.Where("shelf_id = ?", filter.ShelfID)
	}
	if filter.AvailableOnly {
		query = query.Where("copies_available > 0")
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(isbn) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err, "Book")
	}

	var books []models.Book
	err := query.Preload("Category").Preload("Shelf").
		Order("title").Offset(filter.Page.Offset()).Limit(filter.Page.Size).
		Find(&books).Error
	if err != nil {
		return nil, 0, classify(err, "Book")
	}
	return books, total, nil
}

func (s *Gorm) CreateBook(ctx context.Context, book *models.Book) error {
	return classify(s.db.WithContext(ctx).Omit(clause.Associations).Create(book).Error, "Book")
}

func (s *Gorm) DeleteBook(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ?", id).
		Where("NOT EXISTS (SELECT 1 FROM borrowings WHERE borrowings.book_id = books.id AND borrowings.status IN ?)",
			models.ActiveBorrowingStatuses).
		Delete(&models.Book{})
	if res.Error != nil {
		return false, classify(res.Error, "Book")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) DecrementAvailable(ctx context.Context, bookID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND copies_available > 0", bookID).
		Updates(map[string]interface{}{
			"copies_available": gorm.Expr("copies_available - 1"),
			"status":           gorm.Expr(derivedStatusSQL("copies_available - 1"), derivedStatusArgs()...),
		})
	if res.Error != nil {
		return false, classify(res.Error, "Book")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) IncrementAvailable(ctx context.Context, bookID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND copies_available < copies_total", bookID).
		Updates(map[string]interface{}{
			"copies_available": gorm.Expr("copies_available + 1"),
			"status":           gorm.Expr(derivedStatusSQL("copies_available + 1"), derivedStatusArgs()...),
		})
	if res.Error != nil {
		return false, classify(res.Error, "Book")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) SetCopies(ctx context.Context, bookID string, total int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND copies_total - copies_available <= ?", bookID, total).
		Updates(map[string]interface{}{
			"copies_available": gorm.Expr("copies_available + ? - copies_total", total),
			"copies_total":     total,
			"status": gorm.Expr(derivedStatusSQL("copies_available + ? - copies_total"),
				derivedStatusArgs(total)...),
		})
	if res.Error != nil {
		return false, classify(res.Error, "Book")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) SetBookStatus(ctx context.Context, bookID string, status models.BookStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ?", bookID).
		Update("status", status)
	if res.Error != nil {
		return false, classify(res.Error, "Book")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) RestoreBookStatus(ctx context.Context, bookID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ?", bookID).
		Update("status", gorm.Expr("CASE WHEN copies_available > 0 THEN ? ELSE ? END",
			models.BookAvailable, models.BookBorrowed))
	if res.Error != nil {
		return false, classify(res.Error, "Book")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) SyncBookStatuses(ctx context.Context) (int64, error) {
	db := s.db.WithContext(ctx)

	freed := db.Model(&models.Book{}).
		Where("status = ? AND copies_available > 0", models.BookBorrowed).
		Update("status", models.BookAvailable)
	if freed.Error != nil {
		return 0, classify(freed.Error, "Book")
	}

	exhausted := db.Model(&models.Book{}).
		Where("status = ? AND copies_available = 0", models.BookAvailable).
		Update("status", models.BookBorrowed)
	if exhausted.Error != nil {
		return 0, classify(exhausted.Error, "Book")
	}
	return freed.RowsAffected + exhausted.RowsAffected, nil
}

// Users

func (s *Gorm) FindUser(ctx context.Context, id string, forUpdate bool) (*models.User, error) {
	var user models.User
	if err := s.query(ctx, forUpdate).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err, "User", id)
	}
	return &user, nil
}

func (s *Gorm) ListUsers(ctx context.Context, page Page) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err, "User")
	}
	var users []models.User
	if err := query.Order("email").Offset(page.Offset()).Limit(page.Size).Find(&users).Error; err != nil {
		return nil, 0, classify(err, "User")
	}
	return users, total, nil
}

func (s *Gorm) CreateUser(ctx context.Context, user *models.User) error {
	return classify(s.db.WithContext(ctx).Create(user).Error, "User")
}

func (s *Gorm) SetUserStatus(ctx context.Context, id string, status models.UserStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return false, classify(res.Error, "User")
	}
	return res.RowsAffected == 1, nil
}

// Borrowings

func (s *Gorm) FindBorrowing(ctx context.Context, id string, forUpdate bool) (*models.Borrowing, error) {
	var borrowing models.Borrowing
	q := s.query(ctx, forUpdate)
	if !forUpdate {
		q = q.Preload("User").Preload("Book")
	}
	if err := q.Where("id = ?", id).First(&borrowing).Error; err != nil {
		return nil, notFound(err, "Borrowing", id)
	}
	return &borrowing, nil
}

func (s *Gorm) borrowingQuery(ctx context.Context, filter BorrowingFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Borrowing{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.BookID != "" {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	return query
}

func (s *Gorm) CountBorrowings(ctx context.Context, filter BorrowingFilter) (int64, error) {
	var count int64
	if err := s.borrowingQuery(ctx, filter).Count(&count).Error; err != nil {
		return 0, classify(err, "Borrowing")
	}
	return count, nil
}

func (s *Gorm) ListBorrowings(ctx context.Context, filter BorrowingFilter, page Page) ([]models.Borrowing, int64, error) {
	query := s.borrowingQuery(ctx, filter)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err, "Borrowing")
	}

	var borrowings []models.Borrowing
	err := query.Preload("Book").Order("borrow_date DESC").
		Offset(page.Offset()).Limit(page.Size).Find(&borrowings).Error
	if err != nil {
		return nil, 0, classify(err, "Borrowing")
	}
	return borrowings, total, nil
}

func (s *Gorm) CreateBorrowing(ctx context.Context, borrowing *models.Borrowing) error {
	return classify(s.db.WithContext(ctx).Omit(clause.Associations).Create(borrowing).Error, "Borrowing")
}

func (s *Gorm) TransitionBorrowing(ctx context.Context, id string, from, to models.BorrowingStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Borrowing{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, classify(res.Error, "Borrowing")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) MarkReturned(ctx context.Context, id string, at time.Time, notes string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Borrowing{}).
		Where("id = ? AND status IN ?", id, models.ActiveBorrowingStatuses).
		Updates(map[string]interface{}{
			"status":             models.BorrowingReturned,
			"actual_return_date": at,
			"notes":              notes,
		})
	if res.Error != nil {
		return false, classify(res.Error, "Borrowing")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) ExtendDue(ctx context.Context, id string, due time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Borrowing{}).
		Where("id = ? AND status = ?", id, models.BorrowingBorrowed).
		Update("expected_return_date", due)
	if res.Error != nil {
		return false, classify(res.Error, "Borrowing")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) ListOverdue(ctx context.Context, now time.Time) ([]models.Borrowing, error) {
	var borrowings []models.Borrowing
	err := s.db.WithContext(ctx).Preload("Book").
		Where("status = ? AND expected_return_date < ?", models.BorrowingBorrowed, now).
		Order("expected_return_date").
		Find(&borrowings).Error
	if err != nil {
		return nil, classify(err, "Borrowing")
	}
	return borrowings, nil
}

// Notifications

func (s *Gorm) CreateNotification(ctx context.Context, n *models.Notification) error {
	return classify(s.db.WithContext(ctx).Create(n).Error, "Notification")
}

func (s *Gorm) FindNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, notFound(err, "Notification", id)
	}
	return &n, nil
}

func (s *Gorm) ListNotifications(ctx context.Context, userID string, unreadOnly bool, page Page) ([]models.Notification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err, "Notification")
	}
	var items []models.Notification
	err := query.Order("created_at DESC").Offset(page.Offset()).Limit(page.Size).Find(&items).Error
	if err != nil {
		return nil, 0, classify(err, "Notification")
	}
	return items, total, nil
}

func (s *Gorm) MarkNotificationRead(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Update("is_read", true)
	if res.Error != nil {
		return false, classify(res.Error, "Notification")
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) HasNotificationSince(ctx context.Context, userID, bookID string, typ models.NotificationType, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND book_id = ? AND type = ? AND created_at >= ?", userID, bookID, typ, since).
		Count(&count).Error
	if err != nil {
		return false, classify(err, "Notification")
	}
	return count > 0, nil
}

// Audit

func (s *Gorm) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return classify(s.db.WithContext(ctx).Create(entry).Error, "AuditLog")
}

func (s *Gorm) ListAuditLogs(ctx context.Context, filter AuditFilter, page Page) ([]models.AuditLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.BookID != "" {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if filter.BorrowingID != "" {
		query = query.Where("borrowing_id = ?", filter.BorrowingID)
	}
	if filter.ActorUserID != "" {
		query = query.Where("actor_user_id = ?", filter.ActorUserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err, "AuditLog")
	}
	var entries []models.AuditLog
	err := query.Order("created_at DESC").Offset(page.Offset()).Limit(page.Size).Find(&entries).Error
	if err != nil {
		return nil, 0, classify(err, "AuditLog")
	}
	return entries, total, nil
}

// Shelves and categories

func (s *Gorm) CreateShelf(ctx context.Context, shelf *models.Shelf) error {
	return classify(s.db.WithContext(ctx).Create(shelf).Error, "Shelf")
}

func (s *Gorm) FindShelf(ctx context.Context, id string) (*models.Shelf, error) {
	var shelf models.Shelf
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&shelf).Error; err != nil {
		return nil, notFound(err, "Shelf", id)
	}
	return &shelf, nil
}

func (s *Gorm) ListShelves(ctx context.Context) ([]models.Shelf, error) {
	var shelves []models.Shelf
	if err := s.db.WithContext(ctx).Order("code").Find(&shelves).Error; err != nil {
		return nil, classify(err, "Shelf")
	}
	return shelves, nil
}

func (s *Gorm) CreateCategory(ctx context.Context, category *models.Category) error {
	return classify(s.db.WithContext(ctx).Create(category).Error, "Category")
}

func (s *Gorm) FindCategory(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&category).Error; err != nil {
		return nil, notFound(err, "Category", id)
	}
	return &category, nil
}

func (s *Gorm) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, classify(err, "Category")
	}
	return categories, nil
}
