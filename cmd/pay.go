package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apperrors "github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/internal/confirmation"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Pay from the terminal and wait for confirmation",
	Long:  `Initiate a payment against the HTTP API and poll its status until it completes, fails or times out`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPay(cmd)
	},
}

var (
	payPhone  string
	payAmount int64
	payLabel  string
	payAPIURL string
)

func runPay(cmd *cobra.Command) error {
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log := logger.LoggerWrapper()
	out := cmd.OutOrStdout()

	apiURL := getStringFlag(payAPIURL, config.Server.BaseURL)
	client := confirmation.NewAPIClient(apiURL, config.Payment.RequestTimeout)

	session := confirmation.NewSession(client, client, confirmation.Config{
		MinimumAmount:       config.Payment.MinimumAmount,
		PollInterval:        config.Confirmation.PollInterval,
		PollDeadline:        config.Confirmation.PollDeadline,
		SuccessDisplayDelay: config.Confirmation.SuccessDisplayDelay,
	}, log)
	defer session.Close()

	done := make(chan error, 1)
	session.OnChange(func(state confirmation.State) {
		switch st := state.(type) {
		case confirmation.Initiating:
			fmt.Fprintln(out, "Sending payment request...")
		case confirmation.Pending:
			fmt.Fprintf(out, "Check your phone and enter your M-PESA PIN (reference %s)\n", st.Token)
		case confirmation.Completed:
			fmt.Fprintf(out, "Payment confirmed. Receipt %s\n", st.Receipt)
		case confirmation.Failed:
			fmt.Fprintf(out, "Payment failed: %s\n", st.Reason)
			done <- fmt.Errorf("payment %s failed: %s", st.Token, st.Reason)
		}
	})
	session.OnComplete(func(confirmation.Completed) {
		done <- nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Submit(ctx, payPhone, payAmount, payLabel); err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok {
			for _, fieldErr := range appErr.FieldErrors() {
				fmt.Fprintf(out, "%s: %s\n", fieldErr.Field, fieldErr.Message)
			}
		}
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.New("cancelled while waiting for confirmation")
	}
}

func init() {
	payCmd.Flags().StringVar(&payPhone, "phone", "", "Payer phone number, e.g. 0712345678")
	payCmd.Flags().Int64Var(&payAmount, "amount", 105, "Amount in whole currency units")
	payCmd.Flags().StringVar(&payLabel, "label", "Standard Report", "What the payment is for")
	payCmd.Flags().StringVar(&payAPIURL, "api-url", "", "Payment API base URL (overrides http_server.base_url)")
	_ = payCmd.MarkFlagRequired("phone")

	rootCmd.AddCommand(payCmd)
}
