package store

import (
	"context"
	"errors"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
)

var (
	// ErrDuplicateReview is returned when a create would give a (book, user)
	// pair a second review. Callers retry the reconciliation as an update.
	ErrDuplicateReview = errors.New("review already exists for book and user")
	// ErrBookNotFound is returned when a review references a missing book.
	ErrBookNotFound = errors.New("book not found")
	// ErrReviewNotFound is returned when an update targets a missing review.
	ErrReviewNotFound = errors.New("review not found")
)

// BookFilter selects a page of books.
type BookFilter struct {
	Search string
	Offset int
	Limit  int
}

// Store defines persistence operations for books and reviews.
type Store interface {
	// books
	ListBooks(ctx context.Context, filter BookFilter) ([]domain.BookWithReviews, error)
	BookExists(ctx context.Context, id int64) (bool, error)
	SaveBooks(ctx context.Context, books []domain.Book) error

	// reviews
	ListReviewsByBook(ctx context.Context, bookID int64) ([]domain.Review, error)

	// Transaction runs fn atomically. Any error returned by fn, or a
	// cancelled ctx, leaves no partial writes behind.
	Transaction(ctx context.Context, fn func(tx ReviewTx) error) error
}

// ReviewTx is the set of operations available inside a review transaction.
type ReviewTx interface {
	BookExists(id int64) (bool, error)
	// GetReview returns the review owned by (bookID, userID), locking it for
	// update where the backend supports row locks.
	GetReview(bookID, userID int64) (domain.Review, bool, error)
	// CreateReview inserts a review and returns it with its assigned ID.
	// Returns ErrDuplicateReview when the pair already owns a review.
	CreateReview(r domain.Review) (domain.Review, error)
	// UpdateReview overwrites rating and text of an existing review.
	UpdateReview(r domain.Review) (domain.Review, error)
}
