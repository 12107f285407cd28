package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payconfirm/internal/reconcile"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report stale pending payments and callback anomalies",
	Long:  `Summarize ledger activity over a window and list payments still pending past the stale threshold`,
	RunE:  runReconcile,
}

var (
	reconcileStaleAfter time.Duration
	reconcileWindow     time.Duration
)

func runReconcile(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log := logger.LoggerWrapper()

	db, err := openReportDB(config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	reconcileConfig := reconcile.Config{
		StaleAfter: config.Reconcile.StaleAfter,
		Window:     config.Reconcile.Window,
		Limit:      config.Reconcile.Limit,
	}
	if reconcileStaleAfter > 0 {
		reconcileConfig.StaleAfter = reconcileStaleAfter
	}
	if reconcileWindow > 0 {
		reconcileConfig.Window = reconcileWindow
	}

	service := reconcile.NewService(reconcile.NewStore(db), reconcileConfig, nil, log)
	report, err := service.Run(cmd.Context(), time.Now().UTC())
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func init() {
	reconcileCmd.Flags().DurationVar(&reconcileStaleAfter, "stale-after", 0, "Report pending payments older than this (overrides config)")
	reconcileCmd.Flags().DurationVar(&reconcileWindow, "window", 0, "Summary window ending now (overrides config)")

	rootCmd.AddCommand(reconcileCmd)
}
