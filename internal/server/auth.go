package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/SMIITT22/Book-Recommendation-System/internal/app"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// authHandler receives the identity resolved for the current request.
type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

// authenticated re-runs token verification and credential lookup on every
// request before calling next.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "authorize", "fail", "reason", "missing_token")
			writeUnauthorized(w, "Could not validate credentials")
			return
		}
		identity, err := s.app.Authenticate(token)
		if err != nil {
			s.audit(r, "authorize", "fail", "reason", "invalid_token_or_user")
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "authorize", "success", "user_id", identity.UserID)
		next(w, r, identity)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "login", "too many login attempts") {
		s.audit(r, "login", "rate_limited")
		return
	}
	req, err := decodeLogin(w, r)
	if err != nil {
		s.audit(r, "login", "fail", "reason", "invalid_body")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		reason := "invalid_credentials"
		var verr *app.ValidationError
		if errors.As(err, &verr) {
			reason = "validation"
		}
		s.audit(r, "login", "fail", "reason", reason)
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "login", "success", "username", req.Username)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// decodeLogin accepts a JSON body or an OAuth2 password-grant style form.
func decodeLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return loginRequest{}, errors.New("invalid form body")
		}
		return loginRequest{
			Username: r.PostFormValue("username"),
			Password: r.PostFormValue("password"),
		}, nil
	default:
		var req loginRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			return loginRequest{}, errors.New("invalid JSON body")
		}
		return req, nil
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
