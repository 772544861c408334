package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/store"
)

const (
	DefaultBookLimit = 10
	MaxBookLimit     = 100
)

// BookQuery selects a page of the catalogue.
type BookQuery struct {
	Search string
	Skip   int
	Limit  int
}

// ListBooks returns a page of books with their average rating.
func (a *App) ListBooks(ctx context.Context, q BookQuery) ([]domain.BookSummary, error) {
	v := &ValidationError{}
	if q.Skip < 0 {
		v.Add("skip", "must be greater than or equal to 0")
	}
	if q.Limit < 1 || q.Limit > MaxBookLimit {
		v.Add("limit", "must be between 1 and 100")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	books, err := a.store.ListBooks(ctx, store.BookFilter{
		Search: q.Search,
		Offset: q.Skip,
		Limit:  q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	res := make([]domain.BookSummary, 0, len(books))
	for _, b := range books {
		res = append(res, domain.BookSummary{
			ID:            b.ID,
			Title:         b.Title,
			Author:        b.Author,
			Genre:         b.Genre,
			AverageRating: AverageRating(b.Reviews),
		})
	}
	return res, nil
}

// ListReviews returns the reviews of a book ordered by id.
func (a *App) ListReviews(ctx context.Context, bookID int64) ([]domain.Review, error) {
	if bookID <= 0 {
		return nil, NewValidationError("book_id", "must be a positive integer")
	}
	ok, err := a.store.BookExists(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("check book: %w", err)
	}
	if !ok {
		return nil, ErrBookNotFound
	}
	reviews, err := a.store.ListReviewsByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// AverageRating is the mean rating rounded to one decimal place. The exact
// binary value of the mean is rounded and ties go to even, so 1.25 gives 1.2
// and a mean of 41/20 gives 2.0. No reviews yields exactly 0.
func AverageRating(reviews []domain.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	mean := float64(sum) / float64(len(reviews))
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(mean, 'f', 1, 64), 64)
	if err != nil {
		return mean
	}
	return rounded
}
