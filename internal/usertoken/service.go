package usertoken

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
)

const (
	DefaultAlgorithm = "HS256"
	DefaultTTL       = 30 * time.Minute
)

var (
	// ErrInvalidToken covers bad signatures, unexpected algorithms, malformed
	// tokens and claims that do not match the expected shape.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpired is returned for a well-formed token whose expiry has passed.
	ErrExpired = errors.New("token expired")
)

var supportedMethods = map[string]jwt.SigningMethod{
	jwt.SigningMethodHS256.Alg(): jwt.SigningMethodHS256,
	jwt.SigningMethodHS384.Alg(): jwt.SigningMethodHS384,
	jwt.SigningMethodHS512.Alg(): jwt.SigningMethodHS512,
}

// Config configures the token service.
type Config struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
	Leeway    time.Duration
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Service issues and verifies HMAC-signed access tokens.
type Service struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewService validates cfg and builds a token service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret required")
	}
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := supportedMethods[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q", cfg.Algorithm)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("token leeway must not be negative")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		secret: []byte(cfg.Secret),
		method: method,
		ttl:    ttl,
		leeway: cfg.Leeway,
		now:    now,
	}, nil
}

// TTL returns the default token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// IssueDefault signs a token for subject using the configured lifetime.
func (s *Service) IssueDefault(subject string, userID int64) (string, error) {
	return s.Issue(subject, userID, s.ttl)
}

// Issue signs a token for subject that expires ttl from now. A non-positive
// ttl falls back to the configured lifetime. exp is rounded up to the next
// whole second so the token is never valid for less than ttl.
func (s *Service) Issue(subject string, userID int64, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject required")
	}
	if userID <= 0 {
		return "", errors.New("token user id must be positive")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	if whole := exp.Truncate(time.Second); whole.Before(exp) {
		exp = whole.Add(time.Second)
	}
	claims := Claims{
		Subject:   subject,
		UserID:    userID,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now.Truncate(time.Second)),
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
}

// clock is the verification time at second granularity.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// Verify checks signature, shape and expiry, and returns the identity the
// token was issued for.
func (s *Service) Verify(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrExpired
		}
		return domain.Identity{}, ErrInvalidToken
	}
	// Valid only while exp is strictly after now, compared in whole seconds.
	if !s.clock().Before(claims.ExpiresAt.Time.Add(s.leeway)) {
		return domain.Identity{}, ErrExpired
	}
	return domain.Identity{UserID: claims.UserID, Username: claims.Subject}, nil
}

// Claims is the fixed payload of an access token.
type Claims struct {
	Subject   string           `json:"sub"`
	UserID    int64            `json:"id"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	IssuedAt  *jwt.NumericDate `json:"iat,omitempty"`
}

var allowedClaims = map[string]struct{}{
	"sub": {},
	"id":  {},
	"exp": {},
	"iat": {},
}

// UnmarshalJSON rejects unknown fields and payloads missing sub, id or exp.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// Keys are matched exactly; encoding/json alone would accept "SUB".
	for key := range raw {
		if _, ok := allowedClaims[key]; !ok {
			return fmt.Errorf("unexpected claim %q", key)
		}
	}
	type plain Claims
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if strings.TrimSpace(out.Subject) == "" {
		return errors.New("claim sub missing")
	}
	if out.UserID <= 0 {
		return errors.New("claim id missing")
	}
	if out.ExpiresAt == nil {
		return errors.New("claim exp missing")
	}
	*c = Claims(out)
	return nil
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return "", nil }
func (c Claims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }
