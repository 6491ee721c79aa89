package handler

import (
	"context"
	"net/http"
	"time"

	"eatflow-gateway/internal/service"
	"eatflow-gateway/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// HealthFunc reports whether the gateway's dependencies are reachable
type HealthFunc func(ctx context.Context) error

// Handlers groups everything mounted under /api/v1
type Handlers struct {
	Verification *VerificationHandler
	Account      *AccountHandler
	Meal         *MealHandler
}

type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	Health         HealthFunc
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(h Handlers, accounts *service.AccountService, opts RouterOptions, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(opts.RequestTimeout))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				util.Warn("Health check failed", util.ErrorField(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy","service":"eatflow-gateway"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"eatflow-gateway"}`))
	})

	router.Route("/api/v1", func(r chi.Router) {
		h.Verification.RegisterRoutes(r)
		h.Account.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(accounts, logger))
			h.Account.RegisterProtectedRoutes(r)
			h.Meal.RegisterRoutes(r)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"success":false,"error":"method not allowed"}`))
	})

	return router
}
