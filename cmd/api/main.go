package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PortNumber53/techpost-ai/internal/config"
	"github.com/PortNumber53/techpost-ai/internal/credentials"
	"github.com/PortNumber53/techpost-ai/internal/dbmigrate"
	"github.com/PortNumber53/techpost-ai/internal/entitlement"
	"github.com/PortNumber53/techpost-ai/internal/generation"
	"github.com/PortNumber53/techpost-ai/internal/handlers"
	"github.com/PortNumber53/techpost-ai/internal/history"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/middleware"
	"github.com/PortNumber53/techpost-ai/internal/postgen"
	"github.com/PortNumber53/techpost-ai/internal/session"
	"github.com/PortNumber53/techpost-ai/internal/workers"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(defaultDeps()); err != nil {
		log.Fatal(err)
	}
}

type deps struct {
	loadEnv        func(...string) error
	getenv         func(string) string
	openDB         func(driverName, dataSourceName string) (*sql.DB, error)
	migrateUp      func(*sql.DB) error
	newGenerator   func(ctx context.Context, cfg config.Config, logger *zap.Logger) (postgen.Generator, error)
	listenAndServe func(*http.Server) error
	notify         func(c chan<- os.Signal, sig ...os.Signal)
	stopCh         chan os.Signal
}

func defaultDeps() deps {
	return deps{
		loadEnv:        godotenv.Load,
		getenv:         os.Getenv,
		openDB:         sql.Open,
		migrateUp:      migrateUp,
		newGenerator:   newGenerator,
		listenAndServe: func(s *http.Server) error { return s.ListenAndServe() },
		notify:         signal.Notify,
	}
}

func migrateUp(db *sql.DB) error {
	source := os.Getenv("MIGRATIONS_SOURCE")
	if source == "" {
		source = dbmigrate.DefaultSource
	}
	return dbmigrate.Up(db, source)
}

func newGenerator(ctx context.Context, cfg config.Config, logger *zap.Logger) (postgen.Generator, error) {
	return generation.New(ctx, cfg.GenAIAPIKey, generation.Options{
		Model:  cfg.Model,
		RPS:    cfg.GenerationRPS,
		Burst:  cfg.GenerationBurst,
		Logger: logger,
	})
}

func buildRouter(h *handlers.Handler, cfg config.Config, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	handlers.RegisterRoutes(h, r)

	// No configured origins means same-origin only; cors.New treats an empty list as "*".
	var handler http.Handler = r
	if len(cfg.CORSAllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		})
		handler = c.Handler(r)
	}
	return middleware.WithRecover(handler, logger)
}

func run(d deps) error {
	if d.loadEnv != nil {
		_ = d.loadEnv()
	}
	if d.getenv == nil {
		d.getenv = os.Getenv
	}
	cfg, err := config.Load(d.getenv)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if d.openDB == nil {
		return errors.New("openDB dependency is required")
	}
	if d.newGenerator == nil {
		return errors.New("newGenerator dependency is required")
	}
	if d.listenAndServe == nil {
		return errors.New("listenAndServe dependency is required")
	}

	db, err := d.openDB("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if d.migrateUp != nil {
		if err := d.migrateUp(db); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		logger.Info("database is up-to-date")
	}

	gen, err := d.newGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	accounts := credentials.NewStore(db, credentials.Options{InitialCredits: cfg.InitialCredits, Logger: logger})
	sessions := session.NewManager(db, session.Options{TTL: cfg.SessionTTL, CookieSecure: cfg.CookieSecure, Logger: logger})
	posts := history.NewStore(db, logger)
	recorder := postgen.NewTxRecorder(db, entitlement.NewTracker(db, logger), posts)
	pipeline := postgen.NewService(gen, accounts, recorder, sessions, postgen.Options{
		Mode:    cfg.GenerationMode,
		Timeout: cfg.GenerationTimeout,
		Logger:  logger,
	})

	h := handlers.New(handlers.Deps{
		DB:       db,
		Accounts: accounts,
		Sessions: sessions,
		Posts:    posts,
		Pipeline: pipeline,
		Logger:   logger,
	}, handlers.Options{
		AccessCode:          cfg.AccessCode,
		PaywallURL:          cfg.PaywallURL,
		PriceLabel:          cfg.PaywallPriceLabel,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		LockHistory:         cfg.LockHistory,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		AllowedOrigins:      cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Handler:      buildRouter(h, cfg, logger),
		Addr:         cfg.Addr(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 30*time.Second,
	}

	stop := d.stopCh
	if stop == nil {
		stop = make(chan os.Signal, 1)
	}
	if d.notify != nil {
		d.notify(stop, os.Interrupt, syscall.SIGTERM)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cleanup := &workers.SessionCleanupWorker{Sessions: sessions, Interval: cfg.CleanupInterval, Logger: logger}
		cleanup.Start(gctx)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("mode", cfg.GenerationMode))
		if err := d.listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-stop:
			logger.Info("shutting down server")
		case <-gctx.Done():
		}
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("server shutdown error", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
