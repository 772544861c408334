package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SMIITT22/Book-Recommendation-System/internal/app"
	"github.com/SMIITT22/Book-Recommendation-System/internal/ratelimit"
	"github.com/SMIITT22/Book-Recommendation-System/internal/util"
)

const (
	maxBodyBytes          = 1 << 20
	defaultRequestTimeout = 15 * time.Second
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                *app.App
	LoginLimiter       ratelimit.Limiter
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
	// RequestTimeout bounds each request's context. Zero means 15s.
	RequestTimeout time.Duration
}

// Server exposes the book review HTTP API.
type Server struct {
	app            *app.App
	loginLimiter   ratelimit.Limiter
	trusted        *util.TrustedProxies
	corsOrigins    []string
	requestTimeout time.Duration
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	if cfg.LoginLimiter == nil {
		return nil, errors.New("server requires login rate limiter")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		app:            cfg.App,
		loginLimiter:   cfg.LoginLimiter,
		trusted:        cfg.TrustedProxies,
		corsOrigins:    cfg.CORSAllowedOrigins,
		requestTimeout: timeout,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = s.withDeadline(h)
	h = util.WithRequestLog(s.trusted, h)
	h = util.WithRequestID(h)
	h = util.WithCORS(s.corsOrigins)(h)
	return util.WithSecurityHeaders(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/login", s.handleLogin)

	// books (listing requires auth; review reads are public)
	s.mux.Handle("/books", s.authenticated(s.handleListBooks))
	s.mux.HandleFunc("/books/", s.handleBookReviews)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type validationResponse struct {
	Error  string           `json:"error"`
	Fields []app.FieldError `json:"fields"`
}

func writeValidationError(w http.ResponseWriter, verr *app.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
		Error:  "validation failed",
		Fields: verr.Fields,
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, msg)
}

// writeAppError maps the app error taxonomy to one status each. Unknown
// errors are logged and never echoed to the client.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr)
	case errors.Is(err, app.ErrUnauthorized):
		writeUnauthorized(w, "Could not validate credentials")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeUnauthorized(w, "Incorrect username or password")
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, app.ErrReviewConflict):
		writeError(w, http.StatusConflict, "review was modified concurrently, retry")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		util.LoggerFromContext(r.Context()).Warn("request aborted", "err", err)
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, action, msg string) bool {
	key := ratelimit.Key(action, util.ClientIP(r, s.trusted))
	ok, retryAfter := limiter.Allow(r.Context(), key)
	if ok {
		return true
	}
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
