package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
)

type reviewKey struct {
	bookID int64
	userID int64
}

// MemoryStore keeps books and reviews in-process. Used by tests and by the
// API when no database is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	books      map[int64]domain.Book
	reviews    map[int64]domain.Review
	byPair     map[reviewKey]int64 // (book, user) -> review ID
	nextBookID int64
	nextRevID  int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[int64]domain.Book),
		reviews: make(map[int64]domain.Review),
		byPair:  make(map[reviewKey]int64),
	}
}

// ListBooks returns books ordered by id with their reviews attached.
func (m *MemoryStore) ListBooks(ctx context.Context, filter BookFilter) ([]domain.BookWithReviews, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	ids := make([]int64, 0, len(m.books))
	for id, b := range m.books {
		if needle != "" &&
			!strings.Contains(strings.ToLower(b.Title), needle) &&
			!strings.Contains(strings.ToLower(b.Author), needle) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if filter.Offset > 0 {
		if filter.Offset >= len(ids) {
			ids = nil
		} else {
			ids = ids[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(ids) > filter.Limit {
		ids = ids[:filter.Limit]
	}

	res := make([]domain.BookWithReviews, 0, len(ids))
	for _, id := range ids {
		res = append(res, domain.BookWithReviews{
			Book:    m.books[id],
			Reviews: m.reviewsForBookLocked(id),
		})
	}
	return res, nil
}

// BookExists reports whether a book with id exists.
func (m *MemoryStore) BookExists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.books[id]
	return ok, nil
}

// SaveBooks upserts books by id. Books with a zero id are numbered after
// every explicit id in the batch, so they never replace a listed book.
func (m *MemoryStore) SaveBooks(ctx context.Context, books []domain.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	explicit, fresh := splitByID(books)
	for _, b := range explicit {
		if b.ID > m.nextBookID {
			m.nextBookID = b.ID
		}
		m.books[b.ID] = b
	}
	for _, b := range fresh {
		m.nextBookID++
		b.ID = m.nextBookID
		m.books[b.ID] = b
	}
	return nil
}

// ListReviewsByBook returns reviews for a book ordered by id.
func (m *MemoryStore) ListReviewsByBook(ctx context.Context, bookID int64) ([]domain.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reviewsForBookLocked(bookID), nil
}

func (m *MemoryStore) reviewsForBookLocked(bookID int64) []domain.Review {
	res := make([]domain.Review, 0)
	for _, r := range m.reviews {
		if r.BookID == bookID {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Transaction runs fn against the store. Writes are applied immediately and
// undone if fn fails or ctx is cancelled before fn returns.
func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx ReviewTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryReviewTx{store: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// undo entries restore the previous state of one review. A nil prev means the
// review did not exist before the transaction. wrote is what the transaction
// left behind; if another transaction has replaced it since, the entry is
// skipped so that its committed write survives.
type memoryUndo struct {
	id    int64
	prev  *domain.Review
	wrote domain.Review
}

type memoryReviewTx struct {
	store *MemoryStore
	undo  []memoryUndo
}

func (t *memoryReviewTx) BookExists(id int64) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.books[id]
	return ok, nil
}

func (t *memoryReviewTx) GetReview(bookID, userID int64) (domain.Review, bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	id, ok := t.store.byPair[reviewKey{bookID: bookID, userID: userID}]
	if !ok {
		return domain.Review{}, false, nil
	}
	return t.store.reviews[id], true, nil
}

func (t *memoryReviewTx) CreateReview(r domain.Review) (domain.Review, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[r.BookID]; !ok {
		return domain.Review{}, ErrBookNotFound
	}
	key := reviewKey{bookID: r.BookID, userID: r.UserID}
	if _, exists := m.byPair[key]; exists {
		return domain.Review{}, ErrDuplicateReview
	}
	m.nextRevID++
	r.ID = m.nextRevID
	r.ReviewText = cloneText(r.ReviewText)
	m.reviews[r.ID] = r
	m.byPair[key] = r.ID
	t.undo = append(t.undo, memoryUndo{id: r.ID, wrote: r})
	return r, nil
}

func (t *memoryReviewTx) UpdateReview(r domain.Review) (domain.Review, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.reviews[r.ID]
	if !ok {
		return domain.Review{}, ErrReviewNotFound
	}
	prev := current
	current.Rating = r.Rating
	current.ReviewText = cloneText(r.ReviewText)
	m.reviews[r.ID] = current
	t.undo = append(t.undo, memoryUndo{id: r.ID, prev: &prev, wrote: current})
	return current, nil
}

func (t *memoryReviewTx) rollback() {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		u := t.undo[i]
		current, ok := m.reviews[u.id]
		if !ok || !sameReview(current, u.wrote) {
			continue
		}
		if u.prev == nil {
			delete(m.byPair, reviewKey{bookID: current.BookID, userID: current.UserID})
			delete(m.reviews, u.id)
			continue
		}
		m.reviews[u.id] = *u.prev
	}
	t.undo = nil
}

func sameReview(a, b domain.Review) bool {
	if a.ID != b.ID || a.BookID != b.BookID || a.UserID != b.UserID || a.Rating != b.Rating {
		return false
	}
	if a.ReviewText == nil || b.ReviewText == nil {
		return a.ReviewText == nil && b.ReviewText == nil
	}
	return *a.ReviewText == *b.ReviewText
}

func cloneText(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
