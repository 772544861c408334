package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
)

// UserTable is the preloaded credential table. It is never mutated after
// construction, so lookups need no locking.
type UserTable struct {
	byName map[string]domain.User
}

// NewUserTable builds a table from users, rejecting duplicates and records
// that could never authenticate.
func NewUserTable(users []domain.User) (*UserTable, error) {
	byName := make(map[string]domain.User, len(users))
	ids := make(map[int64]string, len(users))
	for i, u := range users {
		u.Username = strings.TrimSpace(u.Username)
		if u.Username == "" {
			return nil, fmt.Errorf("user %d: username required", i)
		}
		if u.ID <= 0 {
			return nil, fmt.Errorf("user %q: id must be positive", u.Username)
		}
		if u.HashedPassword == "" {
			return nil, fmt.Errorf("user %q: hashed_password required", u.Username)
		}
		if _, dup := byName[u.Username]; dup {
			return nil, fmt.Errorf("duplicate username %q", u.Username)
		}
		if other, dup := ids[u.ID]; dup {
			return nil, fmt.Errorf("users %q and %q share id %d", other, u.Username, u.ID)
		}
		byName[u.Username] = u
		ids[u.ID] = u.Username
	}
	return &UserTable{byName: byName}, nil
}

// LoadUserTable reads a users file. JSON is valid YAML, so both formats are
// accepted. The file is either a mapping of username to record or a list of
// records.
func LoadUserTable(path string) (*UserTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	users, err := parseUsers(data)
	if err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	return NewUserTable(users)
}

func parseUsers(data []byte) ([]domain.User, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var users []domain.User
		if err := doc.Decode(&users); err != nil {
			return nil, err
		}
		return users, nil
	case yaml.MappingNode:
		users := make([]domain.User, 0, len(doc.Content)/2)
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key := doc.Content[i].Value
			var u domain.User
			if err := doc.Content[i+1].Decode(&u); err != nil {
				return nil, fmt.Errorf("user %q: %w", key, err)
			}
			if u.Username == "" {
				u.Username = key
			}
			if u.Username != key {
				return nil, fmt.Errorf("user %q: username %q does not match key", key, u.Username)
			}
			users = append(users, u)
		}
		return users, nil
	default:
		return nil, errors.New("expected a mapping or a list of users")
	}
}

// Lookup returns the user with username. Absence is reported by ok=false.
func (t *UserTable) Lookup(username string) (domain.User, bool) {
	if t == nil {
		return domain.User{}, false
	}
	u, ok := t.byName[username]
	return u, ok
}

// Len returns the number of users in the table.
func (t *UserTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byName)
}
