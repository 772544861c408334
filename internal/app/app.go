package app

import (
	"errors"
	"unicode/utf8"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/auth"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/store"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 6
	maxPasswordLength = 100
)

// Credentials resolves pre-loaded user records by username.
type Credentials interface {
	Lookup(username string) (domain.User, bool)
}

// Tokens issues and verifies access tokens.
type Tokens interface {
	IssueDefault(subject string, userID int64) (string, error)
	Verify(token string) (domain.Identity, error)
}

// Config holds the collaborators of the application service.
type Config struct {
	Store       store.Store
	Credentials Credentials
	Tokens      Tokens
	// ReviewAttempts bounds how often a review submission is retried after
	// losing a create race. Zero means the default of 3.
	ReviewAttempts int
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store          store.Store
	credentials    Credentials
	tokens         Tokens
	reviewAttempts int
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("credential store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token service required")
	}
	attempts := cfg.ReviewAttempts
	if attempts <= 0 {
		attempts = defaultReviewAttempts
	}
	return &App{
		store:          cfg.Store,
		credentials:    cfg.Credentials,
		tokens:         cfg.Tokens,
		reviewAttempts: attempts,
	}, nil
}

// ValidateLogin checks login field lengths before any credential lookup.
func ValidateLogin(username, password string) error {
	v := &ValidationError{}
	if n := utf8.RuneCountInString(username); n < minUsernameLength || n > maxUsernameLength {
		v.Add("username", "must be between 3 and 50 characters")
	}
	if n := utf8.RuneCountInString(password); n < minPasswordLength || n > maxPasswordLength {
		v.Add("password", "must be between 6 and 100 characters")
	}
	return v.Err()
}

// Login verifies credentials and issues an access token. Unknown usernames
// and wrong passwords both yield ErrInvalidCredentials after a bcrypt
// comparison of similar cost.
func (a *App) Login(username, password string) (string, error) {
	if err := ValidateLogin(username, password); err != nil {
		return "", err
	}
	user, ok := a.credentials.Lookup(username)
	if !ok {
		auth.BurnPasswordCheck(password)
		return "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.HashedPassword) {
		return "", ErrInvalidCredentials
	}
	token, err := a.tokens.IssueDefault(user.Username, user.ID)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate resolves the identity behind a bearer token. It verifies the
// token and then requires the subject to still exist in the credential
// table with the same id. Nothing is cached between calls.
func (a *App) Authenticate(token string) (domain.Identity, error) {
	claimed, err := a.tokens.Verify(token)
	if err != nil {
		return domain.Identity{}, ErrUnauthorized
	}
	user, ok := a.credentials.Lookup(claimed.Username)
	if !ok || user.ID != claimed.UserID {
		return domain.Identity{}, ErrUnauthorized
	}
	return domain.Identity{UserID: user.ID, Username: user.Username}, nil
}
