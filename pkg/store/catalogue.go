package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/domain"
)

// catalogue is the books file layout shared by the seed tool and the
// in-memory backend.
type catalogue struct {
	Books []catalogueBook `yaml:"books"`
}

type catalogueBook struct {
	ID     int64  `yaml:"id"`
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
	Genre  string `yaml:"genre"`
}

// LoadCatalogue reads and validates a books file.
func LoadCatalogue(path string) ([]domain.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read books file: %w", err)
	}
	books, err := ParseCatalogue(data)
	if err != nil {
		return nil, fmt.Errorf("parse books file %s: %w", path, err)
	}
	return books, nil
}

// ParseCatalogue decodes and validates a catalogue. Explicit ids must be
// unique; books without an id are numbered by the store after every explicit
// id has been saved.
func ParseCatalogue(data []byte) ([]domain.Book, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if len(c.Books) == 0 {
		return nil, errors.New("catalogue has no books")
	}
	seen := make(map[int64]struct{}, len(c.Books))
	books := make([]domain.Book, 0, len(c.Books))
	for i, b := range c.Books {
		title := strings.TrimSpace(b.Title)
		author := strings.TrimSpace(b.Author)
		if title == "" || author == "" {
			return nil, fmt.Errorf("book %d: title and author required", i)
		}
		if b.ID < 0 {
			return nil, fmt.Errorf("book %q: id must not be negative", title)
		}
		if b.ID > 0 {
			if _, dup := seen[b.ID]; dup {
				return nil, fmt.Errorf("book %q: duplicate id %d", title, b.ID)
			}
			seen[b.ID] = struct{}{}
		}
		books = append(books, domain.Book{
			ID:     b.ID,
			Title:  title,
			Author: author,
			Genre:  strings.TrimSpace(b.Genre),
		})
	}
	return books, nil
}

// splitByID separates books that carry an id from books the store numbers.
func splitByID(books []domain.Book) (explicit, fresh []domain.Book) {
	for _, b := range books {
		if b.ID > 0 {
			explicit = append(explicit, b)
			continue
		}
		fresh = append(fresh, b)
	}
	return explicit, fresh
}
