package events

import (
	"context"

	"tahseel_backend/platform/logger"
)

// ActivityLog is a bus subscriber that writes an audit line for every
// follow-up domain event. It gives operators a single stream of what the
// engine did without coupling the publishing modules to the log.
type ActivityLog struct {
	log *logger.Logger
}

func NewActivityLog(log *logger.Logger) *ActivityLog {
	return &ActivityLog{log: log}
}

// RegisterHandlers subscribes the activity log to all follow-up events.
func (a *ActivityLog) RegisterHandlers(bus Bus) {
	bus.Subscribe(ExecutionStopped{}.EventName(), a)
	bus.Subscribe(ReminderCreated{}.EventName(), a)
	bus.Subscribe(DeliveryStatusChanged{}.EventName(), a)
	bus.Subscribe(RunCompleted{}.EventName(), a)
}

// Handle routes events to the matching log line.
func (a *ActivityLog) Handle(_ context.Context, event Event) error {
	switch e := event.(type) {
	case ExecutionStopped:
		a.log.Info("activity: execution stopped",
			"execution_id", e.ExecutionID.String(),
			"invoice_id", e.InvoiceID.String(),
			"reason", e.Reason,
		)
	case ReminderCreated:
		a.log.Info("activity: consolidated reminder created",
			"reminder_id", e.ReminderID.String(),
			"customer_id", e.CustomerID.String(),
			"invoice_count", e.InvoiceCount,
		)
	case DeliveryStatusChanged:
		a.log.Info("activity: delivery status changed",
			"item_id", e.ItemID.String(),
			"delivered", e.Delivered,
			"detail", e.Detail,
		)
	case RunCompleted:
		a.log.Info("activity: run completed",
			"run_id", e.RunID,
			"success", e.Success,
			"skipped", e.Skipped,
			"emails_sent", e.EmailsSent,
			"errors", e.ErrorCount,
		)
	default:
		a.log.Warn("activity: unhandled event", "event", event.EventName())
	}
	return nil
}

// Compile-time check that ActivityLog implements Handler.
var _ Handler = (*ActivityLog)(nil)
