package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/crm-reminders/clock"
	"github.com/yourusername/crm-reminders/datasource"
	"github.com/yourusername/crm-reminders/email"
	"github.com/yourusername/crm-reminders/metrics"
	"github.com/yourusername/crm-reminders/models"
	"github.com/yourusername/crm-reminders/reminders"
)

type Store interface {
	Query(ctx context.Context, q datasource.Query, dest any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Insert(ctx context.Context, collection string, record any) error
}

type Mailer interface {
	SendWithRetry(ctx context.Context, msg email.Message) error
}

// Action is the send-reminders action: it finds the quotes and invoices due
// for a reminder, emails the clients and records every attempt.
type Action struct {
	store     Store
	evaluator *reminders.Evaluator
	mailer    Mailer
	limiter   *rate.Limiter
	clock     clock.Clock
	log       *zap.Logger
}

func NewAction(
	store Store,
	evaluator *reminders.Evaluator,
	mailer Mailer,
	limiter *rate.Limiter,
	clk clock.Clock,
	log *zap.Logger,
) *Action {
	return &Action{
		store:     store,
		evaluator: evaluator,
		mailer:    mailer,
		limiter:   limiter,
		clock:     clk,
		log:       log,
	}
}

// Handle decodes a JSON request and runs the action. It matches
// datasource.Function.
func (a *Action) Handle(ctx context.Context, body json.RawMessage) (any, error) {
	var req reminders.DispatchRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, &reminders.ValidationError{Field: "body", Reason: err.Error()}
		}
	}

	summary, err := a.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return reminders.DispatchResponse{Results: summary}, nil
}

// Run processes every eligible item once. A dry run sends nothing and
// writes nothing. Per-item send failures are reported in the summary;
// data source failures abort the run.
func (a *Action) Run(ctx context.Context, req reminders.DispatchRequest) (reminders.RunSummary, error) {
	summary := reminders.RunSummary{Errors: []string{}}
	if err := req.Validate(); err != nil {
		return summary, err
	}

	metrics.DispatchRuns.WithLabelValues(strconv.FormatBool(req.DryRun)).Inc()
	now := a.clock.Now()

	orgs, err := a.organisations(ctx, req.OrganizationID)
	if err != nil {
		return summary, err
	}

	if req.IncludesQuotes() {
		if err := a.runQuotes(ctx, req, now, orgs, &summary); err != nil {
			return summary, err
		}
	}
	if req.IncludesInvoices() {
		if err := a.runInvoices(ctx, req, now, orgs, &summary); err != nil {
			return summary, err
		}
	}

	a.log.Info("reminder dispatch finished",
		zap.String("organisation_id", req.OrganizationID),
		zap.String("type", req.Type),
		zap.Bool("dry_run", req.DryRun),
		zap.Int("quotes_processed", summary.QuotesProcessed),
		zap.Int("invoices_processed", summary.InvoicesProcessed),
		zap.Int("emails_sent", summary.EmailsSent),
		zap.Int("errors", len(summary.Errors)),
	)

	return summary, nil
}

func (a *Action) runQuotes(
	ctx context.Context,
	req reminders.DispatchRequest,
	now time.Time,
	orgs map[string]models.Organisation,
	summary *reminders.RunSummary,
) error {
	quotes, err := reminders.SentQuotes(ctx, a.store, req.OrganizationID)
	if err != nil {
		return err
	}

	for _, q := range quotes {
		days, due := a.evaluator.QuoteDue(q, now)
		if !due {
			continue
		}
		done, err := a.alreadyReminded(ctx, "quote_id", q.ID, days)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		summary.QuotesProcessed++
		if req.DryRun {
			continue
		}

		org := orgs[q.OrganisationID]
		msg := email.Message{
			FromName: org.Name,
			ReplyTo:  org.ReminderFromEmail,
			To:       q.ClientEmail,
			Subject:  fmt.Sprintf("Following up on quote %s", q.QuoteNumber),
			Template: email.TemplateQuoteFollowup,
			Data: email.TemplateData{
				ClientName:       q.ClientName,
				OrganisationName: org.Name,
				Number:           q.QuoteNumber,
				Title:            q.Title,
				Days:             days,
			},
		}

		quoteID := q.ID
		entry := models.ReminderLog{
			OrganisationID: q.OrganisationID,
			QuoteID:        &quoteID,
			ReminderType:   models.ReminderTypeQuoteFollowup,
			DaysOffset:     days,
		}
		if err := a.deliver(ctx, msg, &entry, now, summary); err != nil {
			return err
		}
		if entry.EmailError != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("quote %s: %s", q.QuoteNumber, *entry.EmailError))
		}
	}
	return nil
}

func (a *Action) runInvoices(
	ctx context.Context,
	req reminders.DispatchRequest,
	now time.Time,
	orgs map[string]models.Organisation,
	summary *reminders.RunSummary,
) error {
	invoices, err := reminders.OpenInvoices(ctx, a.store, req.OrganizationID)
	if err != nil {
		return err
	}

	for _, inv := range invoices {
		days, due := a.evaluator.InvoiceDue(inv, now)

		if !req.DryRun && days > 0 && inv.Status == models.InvoiceStatusSent {
			if err := a.markOverdue(ctx, inv.ID, now); err != nil {
				return err
			}
		}
		if !due {
			continue
		}
		done, err := a.alreadyReminded(ctx, "invoice_id", inv.ID, days)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		summary.InvoicesProcessed++
		if req.DryRun {
			continue
		}

		org := orgs[inv.OrganisationID]
		msg := email.Message{
			FromName: org.Name,
			ReplyTo:  org.ReminderFromEmail,
			To:       inv.ClientEmail,
			Subject:  invoiceSubject(inv.InvoiceNumber, days),
			Template: email.TemplateInvoicePayment,
			Data: email.TemplateData{
				ClientName:       inv.ClientName,
				OrganisationName: org.Name,
				Number:           inv.InvoiceNumber,
				Days:             days,
				Amount:           inv.Amount,
				Currency:         inv.Currency,
				DueDate:          inv.DueDate.Format("2006-01-02"),
			},
		}

		invoiceID := inv.ID
		entry := models.ReminderLog{
			OrganisationID: inv.OrganisationID,
			InvoiceID:      &invoiceID,
			ReminderType:   models.ReminderTypeInvoicePayment,
			DaysOffset:     days,
		}
		if err := a.deliver(ctx, msg, &entry, now, summary); err != nil {
			return err
		}
		if entry.EmailError != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("invoice %s: %s", inv.InvoiceNumber, *entry.EmailError))
		}
	}
	return nil
}

// deliver sends one email and records the attempt. Only a failure to write
// the log is returned.
func (a *Action) deliver(
	ctx context.Context,
	msg email.Message,
	entry *models.ReminderLog,
	now time.Time,
	summary *reminders.RunSummary,
) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	sendErr := a.mailer.SendWithRetry(ctx, msg)

	entry.ID = uuid.NewString()
	entry.SentAt = now
	entry.CreatedAt = now
	entry.EmailSent = sendErr == nil
	if sendErr != nil {
		errMsg := sendErr.Error()
		entry.EmailError = &errMsg

		a.log.Warn("reminder email failed",
			zap.String("type", entry.ReminderType),
			zap.String("to", msg.To),
			zap.Error(sendErr),
		)
		metrics.ReminderFailures.WithLabelValues(entry.ReminderType).Inc()
	} else {
		summary.EmailsSent++
		metrics.RemindersSent.WithLabelValues(entry.ReminderType).Inc()
	}

	if err := a.store.Insert(ctx, datasource.CollectionReminderLogs, entry); err != nil {
		return &reminders.DataError{Collection: datasource.CollectionReminderLogs, Err: err}
	}
	return nil
}

func (a *Action) alreadyReminded(ctx context.Context, column, id string, days int) (bool, error) {
	q := datasource.Query{
		Collection: datasource.CollectionReminderLogs,
		Filters: []datasource.Filter{
			datasource.Eq(column, id),
			datasource.Eq("days_offset", days),
			datasource.Eq("email_sent", true),
		},
	}
	var logs []models.ReminderLog
	if err := a.store.Query(ctx, q, &logs); err != nil {
		return false, &reminders.DataError{Collection: q.Collection, Err: err}
	}
	return len(logs) > 0, nil
}

func (a *Action) markOverdue(ctx context.Context, id string, now time.Time) error {
	err := a.store.Update(ctx, datasource.CollectionInvoices, id, map[string]any{
		"status":     models.InvoiceStatusOverdue,
		"updated_at": now,
	})
	if err != nil {
		return &reminders.DataError{Collection: datasource.CollectionInvoices, Err: err}
	}
	return nil
}

func (a *Action) organisations(ctx context.Context, orgID string) (map[string]models.Organisation, error) {
	q := datasource.Query{Collection: datasource.CollectionOrganisations}
	if orgID != "" {
		q.Filters = []datasource.Filter{datasource.Eq("id", orgID)}
	}

	var orgs []models.Organisation
	if err := a.store.Query(ctx, q, &orgs); err != nil {
		return nil, &reminders.DataError{Collection: q.Collection, Err: err}
	}

	byID := make(map[string]models.Organisation, len(orgs))
	for _, o := range orgs {
		byID[o.ID] = o
	}
	return byID, nil
}

func invoiceSubject(number string, days int) string {
	switch {
	case days < 0:
		return fmt.Sprintf("Invoice %s is due in %d days", number, -days)
	case days == 0:
		return fmt.Sprintf("Invoice %s is due today", number)
	default:
		return fmt.Sprintf("Invoice %s is %d days overdue", number, days)
	}
}
