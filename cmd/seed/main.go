package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"github.com/SMIITT22/Book-Recommendation-System/internal/config"
	"github.com/SMIITT22/Book-Recommendation-System/internal/util"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	booksPath := flag.String("books", "", "path to the books catalogue (defaults to booksFile from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)
	if cfg.StoreBackend == config.StoreBackendMemory {
		log.Fatal("seeding requires the postgres store backend")
	}

	path := *booksPath
	if path == "" {
		path = cfg.BooksFile
	}
	if path == "" {
		log.Fatal("no books catalogue given (-books or booksFile)")
	}
	books, err := store.LoadCatalogue(path)
	if err != nil {
		log.Fatalf("failed to load catalogue: %v", err)
	}

	gormStore, err := store.NewGormStore(cfg.DSN())
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer gormStore.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := gormStore.SaveBooks(ctx, books); err != nil {
		log.Fatalf("failed to save books: %v", err)
	}
	slog.Info("books seeded", "count", len(books), "source", path)
}
