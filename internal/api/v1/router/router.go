package router

import (
	"net/http"

	"brandconfig/internal/api/v1/handler"
	"brandconfig/internal/config"
	"brandconfig/internal/middleware"
	"brandconfig/internal/repository"
	"brandconfig/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Deps are the services the HTTP layer needs. Stripe may be nil.
type Deps struct {
	Gateway       service.ConfigGateway
	Subscriptions service.SubscriptionService
	Limits        service.LimitEnforcer
	Stripe        *service.StripeService
	Tokens        repository.TokenRepository
	APIKeys       repository.APIKeyRepository
	Limiter       middleware.Limiter
	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready func(r *http.Request) error
}

func New(cfg *config.Config, deps Deps, logger zerolog.Logger) http.Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())

	brandHandler := handler.NewBrandHandler(deps.Gateway, validate, logger)
	configHandler := handler.NewConfigHandler(deps.Gateway, validate, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(deps.Stripe, deps.Subscriptions, deps.Limits, logger)
	authHandler := handler.NewAuthHandler(deps.Tokens, logger)
	sdkHandler := handler.NewSDKHandler(deps.Gateway, logger)

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, deps.Tokens, logger)
	apiKeyMiddleware := middleware.APIKeyMiddleware(deps.APIKeys, logger)
	rateLimit := middleware.RateLimit(deps.Limiter)

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, middleware.LoggerMiddleware(logger), chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(req); err != nil {
				logger.Warn().Err(err).Msg("Readiness check failed")
				middleware.WriteError(w, http.StatusServiceUnavailable, "upstream_unavailable", "not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/billing/webhook", subscriptionHandler.Webhook)

	// Operator API
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware, rateLimit)
		brandHandler.RegisterRoutes(r)
		configHandler.RegisterRoutes(r)
		subscriptionHandler.RegisterRoutes(r)
		authHandler.RegisterRoutes(r)
	})

	// SDK API
	sdkRouter, api := SetupHumaAPI(cfg, apiKeyMiddleware, rateLimit, logger)
	RegisterRoutes(api, sdkHandler, logger)
	r.Mount(sdkPrefix, sdkRouter)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.APIKeyHeader},
		AllowCredentials: true,
	})

	logger.Info().Msg("Router initialized")
	return c.Handler(r)
}
