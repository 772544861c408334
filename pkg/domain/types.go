package domain

// ReviewOutcome reports which branch a review submission took.
type ReviewOutcome string

const (
	OutcomeCreated ReviewOutcome = "created"
	OutcomeUpdated ReviewOutcome = "updated"
)

const (
	MinRating           = 1
	MaxRating           = 5
	MaxReviewTextLength = 1000
)

// User is a pre-loaded account record. It is never mutated by the service.
type User struct {
	ID             int64  `json:"id" yaml:"id"`
	Username       string `json:"username" yaml:"username"`
	HashedPassword string `json:"-" yaml:"hashed_password"`
	Email          string `json:"email,omitempty" yaml:"email"`
	FullName       string `json:"full_name,omitempty" yaml:"full_name"`
}

// Identity is the authenticated caller of a protected operation.
type Identity struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
}

type Book struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
}

// BookWithReviews is a book as read from storage together with its reviews.
type BookWithReviews struct {
	Book
	Reviews []Review
}

// BookSummary is the listing view of a book.
type BookSummary struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Genre         string  `json:"genre"`
	AverageRating float64 `json:"average_rating"`
}

type Review struct {
	ID         int64   `json:"id"`
	BookID     int64   `json:"book_id"`
	UserID     int64   `json:"user_id"`
	Rating     int     `json:"rating"`
	ReviewText *string `json:"review_text"`
}

// ReviewInput is the caller-supplied part of a review submission.
type ReviewInput struct {
	Rating     int     `json:"rating"`
	ReviewText *string `json:"review_text"`
}
