package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/store"
)

func strPtr(s string) *string { return &s }

func TestSubmitReviewCreatesThenUpdatesSameReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, outcome, err := env.app.SubmitReview(ctx, 1, 1, domain.ReviewInput{Rating: 5, ReviewText: strPtr("great")})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if outcome != domain.OutcomeCreated {
		t.Fatalf("expected created outcome, got %q", outcome)
	}

	second, outcome, err := env.app.SubmitReview(ctx, 1, 1, domain.ReviewInput{Rating: 4, ReviewText: strPtr("changed")})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if outcome != domain.OutcomeUpdated {
		t.Fatalf("expected updated outcome, got %q", outcome)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same review id, got %d and %d", first.ID, second.ID)
	}

	reviews, err := env.app.ListReviews(ctx, 1)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected exactly one review, got %+v", reviews)
	}
	if reviews[0].Rating != 4 || reviews[0].ReviewText == nil || *reviews[0].ReviewText != "changed" {
		t.Fatalf("unexpected final review: %+v", reviews[0])
	}
}

func TestSubmitReviewClearsTextOnUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.app.SubmitReview(ctx, 2, 1, domain.ReviewInput{Rating: 2, ReviewText: strPtr("meh")}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	review, _, err := env.app.SubmitReview(ctx, 2, 1, domain.ReviewInput{Rating: 3})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if review.ReviewText != nil {
		t.Fatalf("expected text to be cleared, got %q", *review.ReviewText)
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	env := newTestEnv(t)
	long := make([]rune, domain.MaxReviewTextLength+1)
	for i := range long {
		long[i] = 'é'
	}
	exact := string(long[:domain.MaxReviewTextLength])

	cases := []struct {
		name  string
		in    domain.ReviewInput
		field string
	}{
		{name: "rating too low", in: domain.ReviewInput{Rating: 0}, field: "rating"},
		{name: "rating too high", in: domain.ReviewInput{Rating: 6}, field: "rating"},
		{name: "text too long", in: domain.ReviewInput{Rating: 3, ReviewText: strPtr(string(long))}, field: "review_text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.app.SubmitReview(context.Background(), 1, 1, tc.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Fields[0].Field != tc.field {
				t.Fatalf("expected %s field error, got %+v", tc.field, verr.Fields)
			}
		})
	}

	if _, _, err := env.app.SubmitReview(context.Background(), 1, 1, domain.ReviewInput{Rating: 3, ReviewText: &exact}); err != nil {
		t.Fatalf("expected 1000 multi-byte characters to be accepted: %v", err)
	}
}

func TestSubmitReviewUnknownBook(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.app.SubmitReview(context.Background(), 404, 1, domain.ReviewInput{Rating: 3})
	if !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func TestSubmitReviewCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := env.app.SubmitReview(ctx, 1, 1, domain.ReviewInput{Rating: 3})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	reviews, err := env.app.ListReviews(context.Background(), 1)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 0 {
		t.Fatalf("expected no review after cancellation, got %+v", reviews)
	}
}

// barrierStore holds the first two GetReview callers until both have read,
// so both observe an absent review before either creates one.
type barrierStore struct {
	*store.MemoryStore
	calls    atomic.Int32
	arrivals sync.WaitGroup
}

func newBarrierStore(base *store.MemoryStore) *barrierStore {
	s := &barrierStore{MemoryStore: base}
	s.arrivals.Add(2)
	return s
}

func (s *barrierStore) Transaction(ctx context.Context, fn func(tx store.ReviewTx) error) error {
	return s.MemoryStore.Transaction(ctx, func(tx store.ReviewTx) error {
		return fn(&barrierTx{ReviewTx: tx, store: s})
	})
}

type barrierTx struct {
	store.ReviewTx
	store *barrierStore
}

func (t *barrierTx) GetReview(bookID, userID int64) (domain.Review, bool, error) {
	review, ok, err := t.ReviewTx.GetReview(bookID, userID)
	if t.store.calls.Add(1) <= 2 {
		t.store.arrivals.Done()
		t.store.arrivals.Wait()
	}
	return review, ok, err
}

func TestSubmitReviewRaceBothObserveAbsent(t *testing.T) {
	env := newTestEnv(t)
	racing := newBarrierStore(env.store)
	a, err := New(Config{Store: racing, Credentials: env.users, Tokens: env.tokens})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	type result struct {
		review  domain.Review
		outcome domain.ReviewOutcome
		err     error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	for i, rating := range []int{2, 5} {
		i, rating := i, rating
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, o, err := a.SubmitReview(context.Background(), 1, 1, domain.ReviewInput{Rating: rating})
			results[i] = result{review: r, outcome: o, err: err}
		}()
	}
	wg.Wait()

	created, updated := 0, 0
	for _, r := range results {
		if r.err != nil {
			t.Fatalf("submit: %v", r.err)
		}
		switch r.outcome {
		case domain.OutcomeCreated:
			created++
		case domain.OutcomeUpdated:
			updated++
		}
	}
	if created != 1 || updated != 1 {
		t.Fatalf("expected one create and one update, got created=%d updated=%d", created, updated)
	}
	if results[0].review.ID != results[1].review.ID {
		t.Fatalf("expected both submissions to target the same review, got %d and %d", results[0].review.ID, results[1].review.ID)
	}

	reviews, err := env.store.ListReviewsByBook(context.Background(), 1)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected exactly one persisted review, got %+v", reviews)
	}
	var winner domain.Review
	for _, r := range results {
		if r.outcome == domain.OutcomeUpdated {
			winner = r.review
		}
	}
	if reviews[0].Rating != winner.Rating {
		t.Fatalf("expected the later update to win, got rating %d want %d", reviews[0].Rating, winner.Rating)
	}
}

func TestSubmitReviewConcurrentSubmissionsKeepOneReviewPerPair(t *testing.T) {
	env := newTestEnv(t)
	a, err := New(Config{Store: env.store, Credentials: env.users, Tokens: env.tokens, ReviewAttempts: 50})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	const perPair = 25
	pairs := []struct{ book, user int64 }{{1, 1}, {1, 2}, {2, 1}}
	var g errgroup.Group
	for _, p := range pairs {
		p := p
		for i := 0; i < perPair; i++ {
			rating := i%domain.MaxRating + 1
			g.Go(func() error {
				_, _, err := a.SubmitReview(context.Background(), p.book, p.user, domain.ReviewInput{Rating: rating})
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent submit: %v", err)
	}

	for _, bookID := range []int64{1, 2} {
		reviews, err := env.store.ListReviewsByBook(context.Background(), bookID)
		if err != nil {
			t.Fatalf("list reviews: %v", err)
		}
		seen := make(map[int64]int)
		for _, r := range reviews {
			seen[r.UserID]++
			if r.Rating < domain.MinRating || r.Rating > domain.MaxRating {
				t.Fatalf("unexpected rating %d", r.Rating)
			}
		}
		for userID, n := range seen {
			if n != 1 {
				t.Fatalf("book %d user %d has %d reviews", bookID, userID, n)
			}
		}
	}
}

// conflictStore always loses the create race.
type conflictStore struct {
	*store.MemoryStore
	attempts atomic.Int32
}

func (s *conflictStore) Transaction(ctx context.Context, fn func(tx store.ReviewTx) error) error {
	s.attempts.Add(1)
	return s.MemoryStore.Transaction(ctx, func(tx store.ReviewTx) error {
		return fn(conflictTx{ReviewTx: tx})
	})
}

type conflictTx struct {
	store.ReviewTx
}

func (conflictTx) GetReview(int64, int64) (domain.Review, bool, error) {
	return domain.Review{}, false, nil
}

func (conflictTx) CreateReview(domain.Review) (domain.Review, error) {
	return domain.Review{}, store.ErrDuplicateReview
}

func TestSubmitReviewReportsConflictAfterRetries(t *testing.T) {
	env := newTestEnv(t)
	cs := &conflictStore{MemoryStore: env.store}
	a, err := New(Config{Store: cs, Credentials: env.users, Tokens: env.tokens})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	_, _, err = a.SubmitReview(context.Background(), 1, 1, domain.ReviewInput{Rating: 3})
	if !errors.Is(err, ErrReviewConflict) {
		t.Fatalf("expected ErrReviewConflict, got %v", err)
	}
	if got := cs.attempts.Load(); got != defaultReviewAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultReviewAttempts, got)
	}
}
