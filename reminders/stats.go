package reminders

import "github.com/yourusername/crm-reminders/models"

type Stats struct {
	TotalReminders   int `json:"total_reminders"`
	QuoteReminders   int `json:"quote_reminders"`
	InvoiceReminders int `json:"invoice_reminders"`
	SuccessRate      int `json:"success_rate"`
}

// Aggregate reduces reminder logs to summary counts. SuccessRate is the
// percentage of logs with a delivered email, rounded half up, and 0 when
// there are no logs.
func Aggregate(logs []models.ReminderLog) Stats {
	var stats Stats
	sent := 0
	for _, l := range logs {
		stats.TotalReminders++
		switch l.ReminderType {
		case models.ReminderTypeQuoteFollowup:
			stats.QuoteReminders++
		case models.ReminderTypeInvoicePayment:
			stats.InvoiceReminders++
		}
		if l.EmailSent {
			sent++
		}
	}
	if stats.TotalReminders > 0 {
		stats.SuccessRate = (200*sent + stats.TotalReminders) / (2 * stats.TotalReminders)
	}
	return stats
}
