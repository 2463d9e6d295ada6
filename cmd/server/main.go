package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	pagesmith "github.com/pagesmith-dev/pagesmith"
	"github.com/pagesmith-dev/pagesmith/internal/account"
	"github.com/pagesmith-dev/pagesmith/internal/handlers"
	"github.com/pagesmith-dev/pagesmith/internal/history"
	"github.com/pagesmith-dev/pagesmith/internal/identity"
	"github.com/pagesmith-dev/pagesmith/internal/llm"
	"github.com/pagesmith-dev/pagesmith/internal/session"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("Failed to load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	historyStore, err := history.NewBoltStore(cfg.historyPath())
	if err != nil {
		logger.Error("Failed to open history store", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer historyStore.Close()

	accounts, err := account.NewSQLite(cfg.accountsPath())
	if err != nil {
		logger.Error("Failed to open account store", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer accounts.Close()

	creds := credentials()
	opts := cfg.options()
	selectProvider := session.SelectProvider(func() (llm.Provider, error) {
		return llm.Select(creds, opts, logger)
	})

	m, err := handlers.NewMain(handlers.Config{
		Accounts:       accounts,
		History:        historyStore,
		SelectProvider: selectProvider,
		StreamTimeout:  cfg.streamTimeout(),
		Logger:         logger,
	})
	if err != nil {
		logger.Error("Failed to initialize handlers", slog.String("err", err.Error()))
		os.Exit(1)
	}

	staticFS, err := fs.Sub(pagesmith.StaticFS, "static")
	if err != nil {
		logger.Error("Failed to mount static assets", slog.String("err", err.Error()))
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	r.Get("/", m.HandleLanding)
	r.Get("/signup", m.HandleSignupPage)
	r.Post("/signup", m.HandleSignup)
	r.Post("/login", m.HandleLogin)
	r.Post("/logout", m.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(accounts))

		r.Get("/chat", m.HandleChatPage)
		r.Post("/chat", m.HandleSubmit)
		r.Post("/chat/cancel", m.HandleCancel)
		r.Get("/sse", m.HandleSSE)
		r.Get("/preview", m.HandlePreview)
		r.Get("/export/download", m.HandleDownload)
		r.Get("/export/raw", m.HandleRaw)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}
