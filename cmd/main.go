package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gather_auth/internal/auth"
	"gather_auth/internal/auth/onetime"
	"gather_auth/internal/auth/session"
	"gather_auth/internal/config"
	"gather_auth/internal/http_server/handlers/admin"
	changePassword "gather_auth/internal/http_server/handlers/change_password"
	forgotPassword "gather_auth/internal/http_server/handlers/forgot_password"
	"gather_auth/internal/http_server/handlers/health"
	"gather_auth/internal/http_server/handlers/logout"
	magicLink "gather_auth/internal/http_server/handlers/magic_link"
	magicLinkVerify "gather_auth/internal/http_server/handlers/magic_link_verify"
	"gather_auth/internal/http_server/handlers/me"
	"gather_auth/internal/http_server/handlers/refresh"
	"gather_auth/internal/http_server/handlers/register"
	resetPassword "gather_auth/internal/http_server/handlers/reset_password"
	revokeSessions "gather_auth/internal/http_server/handlers/revoke_sessions"
	"gather_auth/internal/http_server/handlers/signin"
	"gather_auth/internal/lib/api/cookie"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/middleware/authn"
	rateLimit "gather_auth/internal/middleware/ratelimit"
	"gather_auth/internal/models"
	"gather_auth/internal/rabbitmq"
	"gather_auth/internal/ratelimit"
	"gather_auth/internal/storage/postgres"
	redisrepo "gather_auth/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting gather auth service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	cache, err := redisrepo.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer cache.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	limiter := ratelimit.New(log, cache, "rl")

	sessions := session.New(
		log,
		storage,
		storage,
		cfg.Tokens.AccessTokenSecret,
		cfg.Tokens.AccessTokenTTL,
		cfg.Tokens.RefreshTokenTTL,
	)

	authService := auth.New(log, storage, storage, sessions)

	tokens := onetime.New(
		log,
		storage,
		storage,
		msgBroker,
		limiter,
		sessions,
		cfg.Tokens.OneTimeTokenTTL,
		cfg.BaseURL,
		onetime.Limits{
			PerIP:    cfg.RateLimits.MagicLinkPerIP,
			PerEmail: cfg.RateLimits.MagicLinkPerEmail,
			Window:   cfg.RateLimits.Window,
		},
		onetime.Limits{
			PerIP:    cfg.RateLimits.PasswordResetPerIP,
			PerEmail: cfg.RateLimits.PasswordResetPerEmail,
			Window:   cfg.RateLimits.Window,
		},
	)

	router := setupRouter(cfg, log, authService, sessions, tokens, storage, cache)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("addr", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", sl.Err(err))
	} else {
		log.Info("server stopped gracefully")
	}
}

func setupRouter(
	cfg *config.Config,
	log *slog.Logger,
	authService *auth.Auth,
	sessions *session.Manager,
	tokens *onetime.Service,
	storage *postgres.PostgresRepo,
	cache *redisrepo.RedisRepo,
) *chi.Mux {
	validate := validator.New()
	cookies := cookie.New(cfg.Env == envProd)
	authMW := authn.New(log, cfg.Tokens.AccessTokenSecret)
	refreshTTL := cfg.Tokens.RefreshTokenTTL

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", health.New(storage, cache))

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit.Register()).
			Post("/register", register.New(log, validate, authService, sessions, cookies, refreshTTL))
		r.With(rateLimit.SignIn()).
			Post("/signin", signin.New(log, validate, authService, sessions, cookies, refreshTTL))
		r.With(rateLimit.Refresh()).
			Post("/refresh", refresh.New(log, sessions, cookies, refreshTTL))
		r.With(rateLimit.Logout()).
			Post("/logout", logout.New(log, sessions, cookies))

		r.Post("/magic-link", magicLink.New(log, validate, tokens))
		r.With(rateLimit.VerifyMagicLink()).
			Post("/magic-link/verify", magicLinkVerify.New(log, validate, tokens, sessions, cookies, refreshTTL))

		r.Post("/forgot-password", forgotPassword.New(log, validate, tokens))
		r.With(rateLimit.ResetPassword()).
			Post("/reset-password", resetPassword.New(log, validate, tokens))

		r.With(authMW.Require).
			Get("/me", me.New(log, authService))
		r.With(authMW.Require).
			Post("/sessions/revoke-all", revokeSessions.New(log, sessions, cookies))
	})

	r.Route("/settings", func(r chi.Router) {
		r.Use(authMW.Require)
		r.Patch("/password", changePassword.New(log, validate, authService))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(authMW.Require)
		r.With(authMW.RequireRole(models.RoleModerator, models.RoleAdmin)).
			Get("/stats", admin.NewStats(log, storage))
		r.With(authMW.RequireRole(models.RoleAdmin)).
			Get("/users", admin.NewUsers(log, storage))
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
