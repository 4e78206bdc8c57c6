package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/crm-reminders/reminders"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req reminders.DispatchRequest) (reminders.RunSummary, error)
}

// Every triggers a dispatch for all organisations once per interval until
// ctx is done. A failed run is logged and the next tick tries again.
func Every(ctx context.Context, interval time.Duration, d Dispatcher, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			summary, err := d.Dispatch(ctx, reminders.DispatchRequest{})
			if err != nil {
				log.Error("scheduled reminder dispatch failed", zap.Error(err))
				continue
			}
			log.Info("scheduled reminder dispatch done",
				zap.Int("quotes_processed", summary.QuotesProcessed),
				zap.Int("invoices_processed", summary.InvoicesProcessed),
				zap.Int("emails_sent", summary.EmailsSent),
				zap.Strings("errors", summary.Errors),
			)
		}
	}
}
