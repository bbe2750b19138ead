package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/api/handler"
	"github.com/zr01/ledgee/internal/api/middleware"
	"github.com/zr01/ledgee/internal/api/spec"
	"github.com/zr01/ledgee/internal/config"
	"github.com/zr01/ledgee/internal/idempotency"
)

type Router struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *pgxpool.Pool
	redis      redis.Cmdable
	idemStore  *idempotency.Store
	ledgerSvc  handler.LedgerPoster
	accountSvc handler.BalanceReader
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redisClient redis.Cmdable, idemStore *idempotency.Store, ledgerSvc handler.LedgerPoster, accountSvc handler.BalanceReader) *Router {
	return &Router{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		idemStore:  idemStore,
		ledgerSvc:  ledgerSvc,
		accountSvc: accountSvc,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	ledgerHandler := handler.NewLedgerHandler(api.ledgerSvc)
	accountHandler := handler.NewAccountHandler(api.accountSvc)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational routes
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).
		Get("/openapi.yaml", spec.OpenAPIHandler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/ledger/{publicId}", ledgerHandler.GetEntry)
		r.Get("/v1/accounts/{publicAccountId}/balance", accountHandler.GetBalance)

		r.Group(func(r chi.Router) {
			r.Use(middleware.IdempotencyMiddleware(api.idemStore, api.logger))
			r.Post("/v1/ledger/{entryType}", ledgerHandler.PostEntry)
			r.Post("/v1/ledger/{parentPublicId}/correction", ledgerHandler.PostCorrection)
		})
	})

	return r
}
