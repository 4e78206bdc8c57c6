package reminders

import (
	"slices"
	"time"

	"github.com/yourusername/crm-reminders/models"
)

const day = 24 * time.Hour

// Triggers holds the day offsets on which a reminder is due.
// QuoteFollowupDays are days since the quote was sent. InvoicePaymentDays
// are signed: negative before the due date, zero on it, positive overdue.
type Triggers struct {
	QuoteFollowupDays  []int
	InvoicePaymentDays []int
}

func DefaultTriggers() Triggers {
	return Triggers{
		QuoteFollowupDays:  []int{3, 7, 14},
		InvoicePaymentDays: []int{-3, 0, 7, 14},
	}
}

// DaysSince returns the whole days elapsed from ref to now, floored toward
// earlier time. It is negative when ref is after now.
func DaysSince(ref, now time.Time) int {
	d := now.Sub(ref)
	days := d / day
	if d%day < 0 {
		days--
	}
	return int(days)
}

type Evaluator struct {
	triggers Triggers
}

func NewEvaluator(triggers Triggers) *Evaluator {
	return &Evaluator{triggers: triggers}
}

func (e *Evaluator) Triggers() Triggers {
	return e.triggers
}

// QuoteDue reports the days since the quote was sent and whether a
// follow-up is due today.
func (e *Evaluator) QuoteDue(q models.Quote, now time.Time) (int, bool) {
	days := DaysSince(q.CreatedAt, now)
	if q.Status != models.QuoteStatusSent {
		return days, false
	}
	return days, slices.Contains(e.triggers.QuoteFollowupDays, days)
}

// InvoiceDue reports the signed day offset to the due date and whether a
// payment reminder is due today. Invoices without a due date are never due.
func (e *Evaluator) InvoiceDue(inv models.Invoice, now time.Time) (int, bool) {
	if inv.DueDate == nil {
		return 0, false
	}
	days := DaysSince(*inv.DueDate, now)
	if inv.Status != models.InvoiceStatusSent && inv.Status != models.InvoiceStatusOverdue {
		return days, false
	}
	return days, slices.Contains(e.triggers.InvoicePaymentDays, days)
}
