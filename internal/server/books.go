package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/SMIITT22/Book-Recommendation-System/internal/app"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
)

const reviewOutcomeHeader = "X-Review-Outcome"

type reviewRequest struct {
	Rating     *int    `json:"rating"`
	ReviewText *string `json:"review_text"`
}

// GET /books?search=&skip=&limit=
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	q, err := parseBookQuery(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	books, err := s.app.ListBooks(r.Context(), q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func parseBookQuery(r *http.Request) (app.BookQuery, error) {
	values := r.URL.Query()
	q := app.BookQuery{
		Search: strings.TrimSpace(values.Get("search")),
		Limit:  app.DefaultBookLimit,
	}
	v := &app.ValidationError{}
	if raw := values.Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			v.Add("skip", "must be an integer")
		}
		q.Skip = n
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			v.Add("limit", "must be an integer")
		}
		q.Limit = n
	}
	return q, v.Err()
}

// /books/{book_id}/reviews
func (s *Server) handleBookReviews(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/books/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "reviews" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	bookID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || bookID <= 0 {
		writeValidationError(w, app.NewValidationError("book_id", "must be a positive integer"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleListReviews(w, r, bookID)
	case http.MethodPost:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
			s.handleSubmitReview(w, r, bookID, identity)
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request, bookID int64) {
	reviews, err := s.app.ListReviews(r.Context(), bookID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request, bookID int64, identity domain.Identity) {
	var req reviewRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			writeValidationError(w, app.NewValidationError(typeErr.Field, "has the wrong type"))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Rating == nil {
		writeValidationError(w, app.NewValidationError("rating", "field required"))
		return
	}

	review, outcome, err := s.app.SubmitReview(r.Context(), bookID, identity.UserID, domain.ReviewInput{
		Rating:     *req.Rating,
		ReviewText: req.ReviewText,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set(reviewOutcomeHeader, string(outcome))
	// Updates answer 201 as well; the header tells the two apart.
	writeJSON(w, http.StatusCreated, review)
}
