package store

// GORM models used for persistence.
type BookModel struct {
	ID      int64  `gorm:"primaryKey"`
	Title   string `gorm:"not null;index"`
	Author  string `gorm:"not null;index"`
	Genre   string
	Reviews []ReviewModel `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
}

func (BookModel) TableName() string { return "books" }

type ReviewModel struct {
	ID         int64 `gorm:"primaryKey"`
	BookID     int64 `gorm:"not null;uniqueIndex:uq_reviews_book_user,priority:1"`
	UserID     int64 `gorm:"not null;uniqueIndex:uq_reviews_book_user,priority:2"`
	Rating     int   `gorm:"not null;check:chk_reviews_rating,rating >= 1 AND rating <= 5"`
	ReviewText *string
}

func (ReviewModel) TableName() string { return "reviews" }
