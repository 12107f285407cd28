package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/payconfirm/internal/payment"
	"github.com/frahmantamala/payconfirm/internal/transport/middleware"
	"github.com/frahmantamala/payconfirm/internal/transport/swagger"
)

const OpenAPIPath = "/openapi.yml"

type RouterConfig struct {
	DB             *sql.DB
	DBComponent    string
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
	AllowedOrigins string

	// OpenAPISpec is served at /openapi.yml when set.
	OpenAPISpec []byte
	// Validator, when set, checks requests against the OpenAPI document.
	Validator func(http.Handler) http.Handler

	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	MetricsPath    string

	Logger *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, cfg RouterConfig) {
	healthHandler := NewHealthHandler(cfg.DB, cfg.DBComponent)

	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID(cfg.Logger))
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RecoveryMiddleware(cfg.Logger))
	if cfg.HTTPMetrics != nil {
		router.Use(cfg.HTTPMetrics.Middleware)
	}

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, cfg.MetricsHandler)
	}

	if len(cfg.OpenAPISpec) > 0 {
		router.Get(OpenAPIPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(cfg.OpenAPISpec)
		})
		router.Handle("/swagger/*", swagger.Handler(OpenAPIPath))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.LoggingMiddleware(cfg.Logger))
			if cfg.Validator != nil {
				pr.Use(cfg.Validator)
			}

			pr.Route("/payments", func(pmr chi.Router) {
				if cfg.WebhookHandler != nil {
					pmr.Post("/callback", cfg.WebhookHandler.HandlePaymentCallback) // POST /payments/callback
				}
				if cfg.PaymentHandler != nil {
					pmr.Post("/initiate", cfg.PaymentHandler.InitiatePayment)              // POST /payments/initiate
					pmr.Post("/status", cfg.PaymentHandler.GetPaymentStatus)               // POST /payments/status
					pmr.Get("/{token}/status", cfg.PaymentHandler.GetPaymentStatusByToken) // GET /payments/:token/status
				}
			})
		})
	})
}
