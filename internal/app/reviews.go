package app

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/SMIITT22/Book-Recommendation-System/internal/util"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/store"
)

const defaultReviewAttempts = 3

// ValidateReview checks rating range and text length.
func ValidateReview(in domain.ReviewInput) error {
	v := &ValidationError{}
	if in.Rating < domain.MinRating || in.Rating > domain.MaxRating {
		v.Add("rating", "must be between 1 and 5")
	}
	if in.ReviewText != nil && utf8.RuneCountInString(*in.ReviewText) > domain.MaxReviewTextLength {
		v.Add("review_text", "must be at most 1000 characters")
	}
	return v.Err()
}

// SubmitReview creates the caller's review of a book, or overwrites it in
// place when one already exists. Each attempt runs in one transaction; an
// attempt that loses a create race to a concurrent submission is retried
// and then takes the update path.
func (a *App) SubmitReview(ctx context.Context, bookID, userID int64, in domain.ReviewInput) (domain.Review, domain.ReviewOutcome, error) {
	if bookID <= 0 {
		return domain.Review{}, "", NewValidationError("book_id", "must be a positive integer")
	}
	if err := ValidateReview(in); err != nil {
		return domain.Review{}, "", err
	}
	logger := util.LoggerFromContext(ctx)

	for attempt := 1; attempt <= a.reviewAttempts; attempt++ {
		review, outcome, err := a.reconcileReview(ctx, bookID, userID, in)
		switch {
		case err == nil:
			return review, outcome, nil
		case errors.Is(err, store.ErrDuplicateReview):
			logger.Debug("review create lost race, retrying", "book_id", bookID, "user_id", userID, "attempt", attempt)
			continue
		case errors.Is(err, store.ErrBookNotFound):
			return domain.Review{}, "", ErrBookNotFound
		default:
			return domain.Review{}, "", fmt.Errorf("submit review: %w", err)
		}
	}
	logger.Warn("review submission exhausted retries", "book_id", bookID, "user_id", userID, "attempts", a.reviewAttempts)
	return domain.Review{}, "", ErrReviewConflict
}

func (a *App) reconcileReview(ctx context.Context, bookID, userID int64, in domain.ReviewInput) (domain.Review, domain.ReviewOutcome, error) {
	var (
		result  domain.Review
		outcome domain.ReviewOutcome
	)
	err := a.store.Transaction(ctx, func(tx store.ReviewTx) error {
		exists, err := tx.BookExists(bookID)
		if err != nil {
			return err
		}
		if !exists {
			return store.ErrBookNotFound
		}
		current, found, err := tx.GetReview(bookID, userID)
		if err != nil {
			return err
		}
		if !found {
			result, err = tx.CreateReview(domain.Review{
				BookID:     bookID,
				UserID:     userID,
				Rating:     in.Rating,
				ReviewText: in.ReviewText,
			})
			outcome = domain.OutcomeCreated
			return err
		}
		current.Rating = in.Rating
		current.ReviewText = in.ReviewText
		result, err = tx.UpdateReview(current)
		outcome = domain.OutcomeUpdated
		return err
	})
	if err != nil {
		return domain.Review{}, "", err
	}
	return result, outcome, nil
}
