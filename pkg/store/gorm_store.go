package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
)

const migrateLockID int64 = 51827403

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

type GormStoreOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type GormStoreOption func(*GormStoreOptions)

// WithPool sets connection pool limits on the underlying sql.DB.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	// Legacy schemas were created without the (book_id, user_id) unique
	// index. Keep the newest review of each pair so the index can be built.
	if tx.Migrator().HasTable(&ReviewModel{}) {
		if err := tx.Exec(`
			DELETE FROM reviews r
			USING reviews newer
			WHERE r.book_id = newer.book_id
			  AND r.user_id = newer.user_id
			  AND r.id < newer.id;
		`).Error; err != nil {
			return fmt.Errorf("dedupe reviews: %w", err)
		}
	}
	if err := tx.AutoMigrate(&BookModel{}, &ReviewModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListBooks returns a page of books ordered by id, with their reviews.
func (s *GormStore) ListBooks(ctx context.Context, filter BookFilter) ([]domain.BookWithReviews, error) {
	query := s.db.WithContext(ctx).
		Preload("Reviews", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("id ASC")
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		query = query.Where("title ILIKE ? OR author ILIKE ?", pattern, pattern)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var models []BookModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.BookWithReviews, 0, len(models))
	for _, m := range models {
		res = append(res, bookWithReviewsFromModel(m))
	}
	return res, nil
}

// BookExists reports whether a book with id exists.
func (s *GormStore) BookExists(ctx context.Context, id int64) (bool, error) {
	return bookExists(s.db.WithContext(ctx), id)
}

// SaveBooks upserts books that carry an id, moves the id sequence past the
// largest id, then inserts books without an id so they draw fresh ids from
// the sequence. Re-running with id-less books inserts them again.
func (s *GormStore) SaveBooks(ctx context.Context, books []domain.Book) error {
	if len(books) == 0 {
		return nil
	}
	explicit, fresh := splitByID(books)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(explicit) > 0 {
			models := booksToModels(explicit)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"title", "author", "genre"}),
			}).Omit(clause.Associations).CreateInBatches(&models, 200).Error; err != nil {
				return fmt.Errorf("upsert books: %w", err)
			}
		}
		if err := tx.Exec(`SELECT setval(pg_get_serial_sequence('books', 'id'), COALESCE((SELECT MAX(id) FROM books), 0) + 1, false)`).Error; err != nil {
			return fmt.Errorf("advance book id sequence: %w", err)
		}
		if len(fresh) > 0 {
			models := booksToModels(fresh)
			if err := tx.Omit(clause.Associations).CreateInBatches(&models, 200).Error; err != nil {
				return fmt.Errorf("insert books: %w", err)
			}
		}
		return nil
	})
}

// ListReviewsByBook returns reviews for a book ordered by id.
func (s *GormStore) ListReviewsByBook(ctx context.Context, bookID int64) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.WithContext(ctx).Where("book_id = ?", bookID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

// Transaction runs fn inside a database transaction bound to ctx.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx ReviewTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormReviewTx{db: tx})
	})
}

type gormReviewTx struct {
	db *gorm.DB
}

func (t *gormReviewTx) BookExists(id int64) (bool, error) {
	return bookExists(t.db, id)
}

func (t *gormReviewTx) GetReview(bookID, userID int64) (domain.Review, bool, error) {
	var model ReviewModel
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("book_id = ? AND user_id = ?", bookID, userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Review{}, false, nil
		}
		return domain.Review{}, false, err
	}
	return reviewFromModel(model), true, nil
}

func (t *gormReviewTx) CreateReview(r domain.Review) (domain.Review, error) {
	model := reviewToModel(r)
	model.ID = 0
	if err := t.db.Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Review{}, ErrDuplicateReview
		}
		if isForeignKeyViolation(err) {
			return domain.Review{}, ErrBookNotFound
		}
		return domain.Review{}, err
	}
	return reviewFromModel(model), nil
}

func (t *gormReviewTx) UpdateReview(r domain.Review) (domain.Review, error) {
	res := t.db.Model(&ReviewModel{}).
		Where("id = ?", r.ID).
		Updates(map[string]any{
			"rating":      r.Rating,
			"review_text": r.ReviewText,
		})
	if res.Error != nil {
		return domain.Review{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Review{}, ErrReviewNotFound
	}
	return r, nil
}

func bookExists(db *gorm.DB, id int64) (bool, error) {
	var count int64
	if err := db.Model(&BookModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode
}

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:     b.ID,
		Title:  b.Title,
		Author: b.Author,
		Genre:  b.Genre,
	}
}

func booksToModels(books []domain.Book) []BookModel {
	models := make([]BookModel, 0, len(books))
	for _, b := range books {
		models = append(models, bookToModel(b))
	}
	return models
}

func bookWithReviewsFromModel(m BookModel) domain.BookWithReviews {
	reviews := make([]domain.Review, 0, len(m.Reviews))
	for _, r := range m.Reviews {
		reviews = append(reviews, reviewFromModel(r))
	}
	return domain.BookWithReviews{
		Book: domain.Book{
			ID:     m.ID,
			Title:  m.Title,
			Author: m.Author,
			Genre:  m.Genre,
		},
		Reviews: reviews,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:         r.ID,
		BookID:     r.BookID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		ReviewText: r.ReviewText,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:         m.ID,
		BookID:     m.BookID,
		UserID:     m.UserID,
		Rating:     m.Rating,
		ReviewText: m.ReviewText,
	}
}
