package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payconfirm/internal/paymentgateway"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Start the sandbox payment gateway",
	Long:  `Start a local gateway that accepts push requests and delivers simulated result callbacks through a worker pool`,
	Run: func(cmd *cobra.Command, args []string) {
		startSandbox()
	},
}

var (
	sandboxPort    int
	maxWorkers     int
	jobQueueSize   int
	workerPoolSize int
	successRate    float64
	callbackURL    string
)

func startSandbox() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Configure(os.Stdout, config.Observability.Logging.Level, config.Observability.Logging.Format)

	sandboxConfig := paymentgateway.SandboxConfig{
		APIKey:         config.Payment.APIKey,
		CallbackURL:    getStringFlag(callbackURL, config.Payment.CallbackURL),
		MaxWorkers:     getIntFlag(maxWorkers, config.Sandbox.MaxWorkers),
		JobQueueSize:   getIntFlag(jobQueueSize, config.Sandbox.JobQueueSize),
		WorkerPoolSize: getIntFlag(workerPoolSize, config.Sandbox.WorkerPoolSize),
		SuccessRate:    config.Sandbox.SuccessRate,
		MinDelay:       config.Sandbox.MinDelay,
		MaxDelay:       config.Sandbox.MaxDelay,
	}
	if successRate >= 0 {
		sandboxConfig.SuccessRate = successRate
	}
	port := getIntFlag(sandboxPort, config.Sandbox.Port)

	log.Info("starting sandbox gateway",
		"port", port,
		"max_workers", sandboxConfig.MaxWorkers,
		"job_queue_size", sandboxConfig.JobQueueSize,
		"success_rate", sandboxConfig.SuccessRate,
		"callback_url", sandboxConfig.CallbackURL)

	sandbox := paymentgateway.NewSandbox(sandboxConfig, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           sandbox.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down sandbox gateway", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("sandbox gateway failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("sandbox server shutdown error", "error", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		sandbox.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info("sandbox worker pool shutdown complete")
	case <-ctx.Done():
		log.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	sandboxCmd.Flags().IntVar(&sandboxPort, "port", 0, "Listen port (overrides config)")
	sandboxCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	sandboxCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	sandboxCmd.Flags().IntVar(&workerPoolSize, "worker-pool-size", 0, "Worker pool channel size (overrides config)")
	sandboxCmd.Flags().Float64Var(&successRate, "success-rate", -1, "Probability in [0,1] that a push completes (overrides config)")
	sandboxCmd.Flags().StringVar(&callbackURL, "callback-url", "", "Default callback URL (overrides config)")

	rootCmd.AddCommand(sandboxCmd)
}
