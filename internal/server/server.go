// Package server wires the dependency graph and runs the HTTP server.
//
// This is the composition root: stores, services, and handlers are all
// constructed here and nowhere else. main.go only loads config and calls
// New/Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tuanvu-dev/campushub-auth/internal/auth"
	"github.com/tuanvu-dev/campushub-auth/internal/config"
	"github.com/tuanvu-dev/campushub-auth/internal/handler"
	"github.com/tuanvu-dev/campushub-auth/internal/middleware"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
	"github.com/tuanvu-dev/campushub-auth/internal/oauth"
	sqliteRepo "github.com/tuanvu-dev/campushub-auth/internal/repository/sqlite"
	"github.com/tuanvu-dev/campushub-auth/internal/service"
	"github.com/tuanvu-dev/campushub-auth/internal/statestore"
)

// Server owns the router and the stateful resources (record store, state
// store) whose lifecycles end at shutdown.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	states statestore.Store
}

// New builds the full dependency graph.
//
// The state store is selected by config: Redis when an address is set, the
// in-process store otherwise. OAuth providers are registered only when their
// credentials are configured; flows for absent providers fail with a clear
// configuration error instead of redirecting with empty client IDs.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var states statestore.Store
	if cfg.RedisAddr != "" {
		states, err = statestore.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting state store: %w", err)
		}
		logger.Info("using redis state store", slog.String("addr", cfg.RedisAddr))
	} else {
		states = statestore.NewMemory()
		logger.Info("using in-memory state store")
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
		states: states,
	}

	if err := s.setupRoutes(); err != nil {
		s.closeStores()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	authn := auth.NewAuthenticator(tokens, s.db)

	providers := oauth.Registry{}
	if s.cfg.GitHub.Configured() {
		providers[model.ProviderGitHub] = oauth.NewGitHub(
			s.cfg.GitHub.ClientID, s.cfg.GitHub.ClientSecret, s.cfg.GitHub.CallbackURL)
	} else {
		s.logger.Warn("GitHub OAuth credentials not set; GitHub login disabled")
	}
	if s.cfg.Jira.Configured() {
		providers[model.ProviderJira] = oauth.NewJira(
			s.cfg.Jira.ClientID, s.cfg.Jira.ClientSecret, s.cfg.Jira.CallbackURL)
	} else {
		s.logger.Warn("Jira OAuth credentials not set; Jira login disabled")
	}

	authService := service.NewAuthService(s.db, s.db, tokens, passwords, s.logger)
	authHandler := handler.NewAuthHandler(
		authService,
		authn,
		providers,
		s.states,
		s.cfg.AllowedOrigins,
		s.cfg.TokenTTL,
		s.cfg.IsProduction(),
		s.logger,
	)

	userService := service.NewUserService(s.db, passwords, s.logger)
	userHandler := handler.NewUserHandler(userService, authn, s.logger)

	s.router.Mount("/auth", authHandler.Routes())
	s.router.Mount("/users", userHandler.Routes())

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, drain in-flight requests (30s budget), close
// the stores.
func (s *Server) Start() error {
	defer s.closeStores()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("env", s.cfg.Env),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeStores() {
	if err := s.states.Close(); err != nil {
		s.logger.Warn("closing state store", slog.String("error", err.Error()))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
