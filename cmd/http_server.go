package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/frahmantamala/payconfirm/api"
	"github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/internal/core/events"
	"github.com/frahmantamala/payconfirm/internal/payment"
	"github.com/frahmantamala/payconfirm/internal/payment/postgres"
	"github.com/frahmantamala/payconfirm/internal/paymentgateway"
	"github.com/frahmantamala/payconfirm/internal/telemetry"
	"github.com/frahmantamala/payconfirm/internal/transport"
	"github.com/frahmantamala/payconfirm/internal/transport/middleware"
	"github.com/frahmantamala/payconfirm/internal/transport/rest"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle payment initiation, gateway callbacks and status lookups`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *gorm.DB
	Router         *chi.Mux
	Handler        http.Handler
	EventBus       *events.EventBus
	Logger         *slog.Logger
	ShutdownTracer func(context.Context) error
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	log := deps.Logger

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	log.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Handler,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down...", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error", "error", err)
	}
	if err := deps.EventBus.Drain(ctx); err != nil {
		log.Warn("event handlers still running at shutdown", "error", err)
	}
	if err := deps.ShutdownTracer(ctx); err != nil {
		log.Error("Tracer shutdown error", "error", err)
	}
	if sqlDB, err := deps.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error("Database close error", "error", err)
		}
	}

	log.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Configure(os.Stdout, config.Observability.Logging.Level, config.Observability.Logging.Format)

	tracing := config.Observability.Tracing
	shutdownTracer, err := telemetry.InitTracer(context.Background(), telemetry.TracingConfig{
		Enabled:      tracing.Enabled,
		ServiceName:  tracing.ServiceName,
		SamplingRate: tracing.SamplingRate,
		OTLPEndpoint: tracing.OTLPEndpoint,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	db, err := openLedger(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := payment.NewMetrics(registry)

	eventBus := events.NewEventBus(log)
	payment.NewEventHandler(paymentMetrics, log).RegisterEventHandlers(eventBus)

	gateway := paymentgateway.NewClient(paymentgateway.ClientConfig{
		BaseURL: config.Payment.GatewayURL,
		APIKey:  config.Payment.APIKey,
		Timeout: config.Payment.RequestTimeout,
	}, log)

	paymentService := payment.NewService(
		postgres.NewPaymentRepository(db),
		gateway,
		eventBus,
		paymentMetrics,
		log,
		payment.ServiceConfig{
			MinimumAmount: config.Payment.MinimumAmount,
			CallbackURL:   config.Payment.CallbackURL,
		},
	)

	baseHandler := transport.NewBaseHandler(log)

	routerConfig := rest.RouterConfig{
		DB:             sqlDB,
		DBComponent:    config.Database.Driver,
		PaymentHandler: payment.NewHandler(baseHandler, paymentService),
		WebhookHandler: payment.NewWebhookHandler(baseHandler, paymentService),
		AllowedOrigins: config.Server.AllowedOrigins,
		OpenAPISpec:    api.Spec,
		HTTPMetrics:    middleware.NewHTTPMetrics(registry),
		Logger:         log,
	}
	if config.Observability.Metrics.Enabled {
		routerConfig.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
		routerConfig.MetricsPath = config.Observability.Metrics.Path
	}
	if config.Server.ValidateRequests {
		doc, err := middleware.LoadOpenAPI(context.Background(), api.Spec)
		if err != nil {
			return nil, err
		}
		// callback payloads are validated by the service
		validator, err := middleware.OpenAPIValidator(doc, log, "handlePaymentCallback")
		if err != nil {
			return nil, err
		}
		routerConfig.Validator = validator
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, routerConfig)

	var handler http.Handler = router
	if tracing.Enabled {
		handler = otelhttp.NewHandler(router, tracing.ServiceName)
	}

	return &Dependencies{
		Config:         config,
		DB:             db,
		Router:         router,
		Handler:        handler,
		EventBus:       eventBus,
		Logger:         log,
		ShutdownTracer: shutdownTracer,
	}, nil
}
