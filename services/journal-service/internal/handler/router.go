package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/payload"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/usecase"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/pkg/types"
	"github.com/vasapolrittideah/health-journal-api/shared/interceptor"
	"github.com/vasapolrittideah/health-journal-api/shared/metrics"
	"github.com/vasapolrittideah/health-journal-api/shared/ratelimit"
)

const (
	healthCheckTimeout = 2 * time.Second
	authRateWindow     = time.Minute
)

// RouterConfig carries everything NewRouter needs. Metrics and Limiter are
// optional.
type RouterConfig struct {
	Logger *zerolog.Logger

	AuthUsecase          usecase.AuthUsecase
	PasswordResetUsecase usecase.PasswordResetUsecase
	HealthEntryUsecase   usecase.HealthEntryUsecase

	Metrics       *metrics.Metrics
	Limiter       ratelimit.Limiter
	AuthRateLimit int
	CORSOrigins   []string

	// HealthCheck backs /healthz, typically the store ping.
	HealthCheck func(ctx context.Context) error
}

// NewRouter assembles the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := newAuthHTTPHandler(cfg.AuthUsecase, cfg.PasswordResetUsecase, cfg.Logger)
	entryHandler := newHealthEntryHTTPHandler(cfg.HealthEntryUsecase, cfg.Logger)
	errs := errorWriter{logger: cfg.Logger}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", healthz(cfg.HealthCheck))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	limit := func(route string) func(http.Handler) http.Handler {
		var onLimited func(string)
		if cfg.Metrics != nil {
			onLimited = cfg.Metrics.RateLimited
		}
		return ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{
			Route:  route,
			Limit:  cfg.AuthRateLimit,
			Window: authRateWindow,
			Key:    ratelimit.KeyByIP,
		}, onLimited, func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
	requireAuth := interceptor.NewJWTMiddleware[*types.JWTClaims](cfg.AuthUsecase, errs.write)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit("register")).Post("/register", authHandler.Register)
			r.With(limit("login")).Post("/login", authHandler.Login)
			r.With(limit("forgot_password")).Post("/forgot-password", authHandler.ForgotPassword)
			r.With(limit("reset_password")).Post("/reset-password", authHandler.ResetPassword)
			r.With(limit("validate_reset_token")).Get("/reset-password/validate", authHandler.ValidateResetToken)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.Me)
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/health/entries", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", entryHandler.CreateEntry)
			r.Get("/", entryHandler.ListEntries)
		})
	})

	return r
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, payload.StatusResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, payload.StatusResponse{Status: "ok"})
	}
}
