package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Confirmation  ConfirmationConfig  `mapstructure:"confirmation"`
	Sandbox       SandboxConfig       `mapstructure:"sandbox"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ValidateRequests  bool          `mapstructure:"validate_requests"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

// PaymentConfig configures the outbound gateway and initiation rules.
type PaymentConfig struct {
	GatewayURL     string        `mapstructure:"gateway_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	CallbackURL    string        `mapstructure:"callback_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinimumAmount  int64         `mapstructure:"minimum_amount" validate:"min=1"`
}

// ConfirmationConfig drives the client-side poll loop.
type ConfirmationConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	PollDeadline        time.Duration `mapstructure:"poll_deadline"`
	SuccessDisplayDelay time.Duration `mapstructure:"success_display_delay"`
}

// SandboxConfig sizes the local stand-in gateway.
type SandboxConfig struct {
	Port           int           `mapstructure:"port"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	JobQueueSize   int           `mapstructure:"job_queue_size"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
	SuccessRate    float64       `mapstructure:"success_rate" validate:"min=0,max=1"`
	MinDelay       time.Duration `mapstructure:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
}

// ReconcileConfig tunes the stale-pending report.
type ReconcileConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Window     time.Duration `mapstructure:"window"`
	Limit      int           `mapstructure:"limit"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name" validate:"required_if=Enabled true"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	DefaultMinimumAmount       = 10
	DefaultPollInterval        = 5 * time.Second
	DefaultPollDeadline        = 2 * time.Minute
	DefaultSuccessDisplayDelay = 2 * time.Second
	DefaultGatewayTimeout      = 30 * time.Second
)

// LoadConfigFromEnv builds the configuration for container deployments.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ValidateRequests:  getEnvAsBool("HTTP_VALIDATE_REQUESTS", true),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 45*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Payment: PaymentConfig{
			GatewayURL:     getEnv("PAYMENT_GATEWAY_URL", "https://api.lipana.dev"),
			APIKey:         getEnv("PAYMENT_API_KEY", ""),
			CallbackURL:    getEnv("PAYMENT_CALLBACK_URL", "http://localhost:8080/api/v1/payments/callback"),
			RequestTimeout: getEnvAsDuration("PAYMENT_REQUEST_TIMEOUT", DefaultGatewayTimeout),
			MinimumAmount:  int64(getEnvAsInt("PAYMENT_MINIMUM_AMOUNT", DefaultMinimumAmount)),
		},
		Confirmation: ConfirmationConfig{
			PollInterval:        getEnvAsDuration("CONFIRMATION_POLL_INTERVAL", DefaultPollInterval),
			PollDeadline:        getEnvAsDuration("CONFIRMATION_POLL_DEADLINE", DefaultPollDeadline),
			SuccessDisplayDelay: getEnvAsDuration("CONFIRMATION_SUCCESS_DISPLAY_DELAY", DefaultSuccessDisplayDelay),
		},
		Sandbox: SandboxConfig{
			Port:           getEnvAsInt("SANDBOX_PORT", 8090),
			MaxWorkers:     getEnvAsInt("SANDBOX_MAX_WORKERS", 10),
			JobQueueSize:   getEnvAsInt("SANDBOX_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize: getEnvAsInt("SANDBOX_WORKER_POOL_SIZE", 10),
			SuccessRate:    getEnvAsFloat("SANDBOX_SUCCESS_RATE", 0.9),
			MinDelay:       getEnvAsDuration("SANDBOX_MIN_DELAY", 2*time.Second),
			MaxDelay:       getEnvAsDuration("SANDBOX_MAX_DELAY", 10*time.Second),
		},
		Reconcile: ReconcileConfig{
			StaleAfter: getEnvAsDuration("RECONCILE_STALE_AFTER", 10*time.Minute),
			Window:     getEnvAsDuration("RECONCILE_WINDOW", 24*time.Hour),
			Limit:      getEnvAsInt("RECONCILE_LIMIT", 100),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Tracing: TracingConfig{
				Enabled:      getEnvAsBool("TRACING_ENABLED", false),
				ServiceName:  getEnv("TRACING_SERVICE_NAME", "payconfirm"),
				SamplingRate: getEnvAsFloat("TRACING_SAMPLING_RATE", 1.0),
				OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ApplyDefaults fills zero values left by a partial config file.
func (c *Config) ApplyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Payment.MinimumAmount <= 0 {
		c.Payment.MinimumAmount = DefaultMinimumAmount
	}
	if c.Payment.RequestTimeout <= 0 {
		c.Payment.RequestTimeout = DefaultGatewayTimeout
	}
	if c.Confirmation.PollInterval <= 0 {
		c.Confirmation.PollInterval = DefaultPollInterval
	}
	if c.Confirmation.PollDeadline <= 0 {
		c.Confirmation.PollDeadline = DefaultPollDeadline
	}
	if c.Confirmation.SuccessDisplayDelay < 0 {
		c.Confirmation.SuccessDisplayDelay = DefaultSuccessDisplayDelay
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.Confirmation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("confirmation config: %v", err))
	}

	if err := c.Sandbox.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("sandbox config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentConfig) Validate() error {
	if c.GatewayURL == "" {
		return errors.New("gateway_url is required")
	}
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		return fmt.Errorf("invalid gateway_url: %w", err)
	}
	if c.CallbackURL == "" {
		return errors.New("callback_url is required")
	}
	if c.MinimumAmount < 1 {
		return errors.New("minimum_amount must be at least 1")
	}
	return nil
}

func (c *ConfirmationConfig) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.PollDeadline < c.PollInterval {
		return errors.New("poll_deadline must be >= poll_interval")
	}
	return nil
}

func (c *SandboxConfig) Validate() error {
	if c.SuccessRate < 0 || c.SuccessRate > 1 {
		return errors.New("success_rate must be between 0 and 1")
	}
	if c.MaxDelay < c.MinDelay {
		return errors.New("max_delay must be >= min_delay")
	}
	return nil
}
