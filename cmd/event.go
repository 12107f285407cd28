package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payconfirm/internal/core/events"
	"github.com/frahmantamala/payconfirm/internal/payment"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish payment lifecycle events on a local bus to check handler wiring`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a payment event",
	Long:  `Publish one of payment.initiated, payment.completed, payment.failed or payment.anomaly to the payment event handlers`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var (
	eventToken  string
	eventAmount int64
)

func buildEvent(eventType string) (events.Event, error) {
	switch eventType {
	case events.EventTypePaymentInitiated:
		return events.NewPaymentInitiatedEvent(eventToken, "CLI", eventAmount, "Standard Report", true), nil
	case events.EventTypePaymentCompleted:
		return events.NewPaymentCompletedEvent(eventToken, eventAmount, "CLI0000000"), nil
	case events.EventTypePaymentFailed:
		return events.NewPaymentFailedEvent(eventToken, eventAmount, "1032", "Request cancelled by user"), nil
	case events.EventTypePaymentAnomaly:
		return events.NewPaymentAnomalyEvent(eventToken, events.AnomalyReasonDuplicate, "0", "completed"), nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

func publishTestEvent(ctx context.Context, eventType string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.LoggerWrapper()

	event, err := buildEvent(eventType)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus(log)
	payment.NewEventHandler(nil, log).RegisterEventHandlers(eventBus)
	eventBus.Subscribe(events.Wildcard, func(ctx context.Context, e events.Event) error {
		log.Info("cli handler received event",
			"event_id", e.EventID(),
			"event_type", e.EventType(),
			"payload", e.Payload())
		return nil
	})

	log.Info("publishing event", "event_type", eventType, "event_id", event.EventID())
	if err := eventBus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return eventBus.Drain(drainCtx)
}

func init() {
	publishEventCmd.Flags().StringVar(&eventToken, "token", "ws_CO_CLI", "Idempotency token carried by the event")
	publishEventCmd.Flags().Int64Var(&eventAmount, "amount", 105, "Amount carried by the event")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
