package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/SMIITT22/Book-Recommendation-System/pkg/store"
)

func TestLoadBooksFillsMemoryStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.yaml")
	catalogue := "books:\n  - {id: 1, title: The Hobbit, author: J.R.R. Tolkien}\n  - {title: Dune, author: Frank Herbert}\n"
	if err := os.WriteFile(path, []byte(catalogue), 0o600); err != nil {
		t.Fatalf("write books file: %v", err)
	}
	data := store.NewMemoryStore()
	if err := loadBooks(data, path); err != nil {
		t.Fatalf("load books: %v", err)
	}
	books, err := data.ListBooks(context.Background(), store.BookFilter{})
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(books) != 2 || books[0].Title != "The Hobbit" || books[1].ID != 2 {
		t.Fatalf("unexpected books: %+v", books)
	}
	ok, err := data.BookExists(context.Background(), 2)
	if err != nil || !ok {
		t.Fatalf("expected book 2 to be reviewable, ok=%v err=%v", ok, err)
	}
}

func TestLoadBooksRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.yaml")
	if err := os.WriteFile(path, []byte("books: []\n"), 0o600); err != nil {
		t.Fatalf("write books file: %v", err)
	}
	if err := loadBooks(store.NewMemoryStore(), path); err == nil {
		t.Fatalf("expected empty catalogue to fail")
	}
}
