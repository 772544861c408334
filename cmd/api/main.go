package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SMIITT22/Book-Recommendation-System/internal/app"
	"github.com/SMIITT22/Book-Recommendation-System/internal/config"
	"github.com/SMIITT22/Book-Recommendation-System/internal/ratelimit"
	"github.com/SMIITT22/Book-Recommendation-System/internal/server"
	"github.com/SMIITT22/Book-Recommendation-System/internal/usertoken"
	"github.com/SMIITT22/Book-Recommendation-System/internal/util"
	"github.com/SMIITT22/Book-Recommendation-System/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", envOr("BOOKREVIEW_CONFIG", config.ConfigPath), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	dataStore, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer closeStore()
	if cfg.BooksFile != "" {
		if err := loadBooks(dataStore, cfg.BooksFile); err != nil {
			log.Fatalf("failed to load books: %v", err)
		}
	}

	users, err := store.LoadUserTable(cfg.UsersFile)
	if err != nil {
		log.Fatalf("failed to load users: %v", err)
	}
	leeway, err := config.ParseTokenLeeway(cfg.TokenLeeway)
	if err != nil {
		log.Fatalf("failed to parse token leeway: %v", err)
	}
	tokens, err := usertoken.NewService(usertoken.Config{
		Secret:    cfg.SecretKey,
		Algorithm: cfg.Algorithm,
		TTL:       cfg.TokenTTL(),
		Leeway:    leeway,
	})
	if err != nil {
		log.Fatalf("failed to init token service: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:       dataStore,
		Credentials: users,
		Tokens:      tokens,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	limiter, closeLimiter, err := newLoginLimiter(cfg)
	if err != nil {
		log.Fatalf("failed to init login rate limiter: %v", err)
	}
	defer closeLimiter()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                appCore,
		LoginLimiter:       limiter,
		TrustedProxies:     trusted,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("book review api listening", "addr", addr, "store", cfg.StoreBackend, "users", users.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func openStore(cfg config.FileConfig) (store.Store, func(), error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
	maxOpen := cfg.DBMaxOpenConns
	gormStore, err := store.NewGormStore(cfg.DSN(), store.WithPool(maxOpen, maxOpen, 30*time.Minute))
	if err != nil {
		return nil, nil, err
	}
	return gormStore, func() {
		if err := gormStore.Close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}, nil
}

// loadBooks upserts the books file into the store. The memory backend starts
// empty, so this is its only source of books.
func loadBooks(dataStore store.Store, path string) error {
	books, err := store.LoadCatalogue(path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := dataStore.SaveBooks(ctx, books); err != nil {
		return err
	}
	slog.Info("books loaded", "count", len(books), "source", path)
	return nil
}

func newLoginLimiter(cfg config.FileConfig) (ratelimit.Limiter, func(), error) {
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.LoginRateLimitPerMinute, time.Minute)
		if err != nil {
			return nil, nil, err
		}
		return limiter, func() { _ = limiter.Close() }, nil
	}
	slog.Info("redis not configured; login rate limit is per process")
	limiter, err := ratelimit.NewLocalLimiter(cfg.LoginRateLimitPerMinute, time.Minute)
	if err != nil {
		return nil, nil, err
	}
	return limiter, func() {}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
