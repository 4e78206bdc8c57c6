package reminders

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/crm-reminders/clock"
	"github.com/yourusername/crm-reminders/datasource"
	"github.com/yourusername/crm-reminders/models"
)

// DataSource is the backend the orchestrator reads from and invokes
// actions on.
type DataSource interface {
	Query(ctx context.Context, q datasource.Query, dest any) error
	Invoke(ctx context.Context, name string, body any, dest any) error
}

type QuoteReminder struct {
	ID            string    `json:"id"`
	QuoteNumber   string    `json:"quote_number"`
	Title         string    `json:"title"`
	ClientName    string    `json:"client_name"`
	CreatedAt     time.Time `json:"created_at"`
	DaysSinceSent int       `json:"days_since_sent"`
}

type InvoiceReminder struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	ClientName    string    `json:"client_name"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	DueDate       time.Time `json:"due_date"`
	Status        string    `json:"status"`
	DaysToDue     int       `json:"days_to_due"`
}

type UpcomingSet struct {
	Quotes   []QuoteReminder   `json:"quotes"`
	Invoices []InvoiceReminder `json:"invoices"`
}

type Dashboard struct {
	GeneratedAt time.Time   `json:"generated_at"`
	WindowDays  int         `json:"window_days"`
	Upcoming    UpcomingSet `json:"upcoming"`
	Stats       Stats       `json:"stats"`
}

type Orchestrator struct {
	source    DataSource
	evaluator *Evaluator
	clock     clock.Clock
}

func NewOrchestrator(source DataSource, evaluator *Evaluator, clk clock.Clock) *Orchestrator {
	return &Orchestrator{
		source:    source,
		evaluator: evaluator,
		clock:     clk,
	}
}

// ListUpcoming returns the quotes and invoices of an organisation that are
// due for a reminder today. Nothing is cached.
func (o *Orchestrator) ListUpcoming(ctx context.Context, orgID string) (UpcomingSet, error) {
	if orgID == "" {
		return UpcomingSet{}, &ValidationError{Field: "organisation", Reason: "required"}
	}
	return o.upcomingAt(ctx, orgID, o.clock.Now())
}

// Statistics summarises the reminder logs sent in the trailing windowDays.
func (o *Orchestrator) Statistics(ctx context.Context, orgID string, windowDays int) (Stats, error) {
	if err := validateStatsArgs(orgID, windowDays); err != nil {
		return Stats{}, err
	}
	return o.statsAt(ctx, orgID, windowDays, o.clock.Now())
}

// Dashboard computes upcoming reminders and statistics concurrently against
// one reading of the clock.
func (o *Orchestrator) Dashboard(ctx context.Context, orgID string, windowDays int) (Dashboard, error) {
	if err := validateStatsArgs(orgID, windowDays); err != nil {
		return Dashboard{}, err
	}

	now := o.clock.Now()
	dash := Dashboard{GeneratedAt: now, WindowDays: windowDays}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		set, err := o.upcomingAt(gctx, orgID, now)
		dash.Upcoming = set
		return err
	})
	g.Go(func() error {
		stats, err := o.statsAt(gctx, orgID, windowDays, now)
		dash.Stats = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return dash, nil
}

// Dispatch invokes the send-reminders action once. Failures are returned
// as is; retrying is up to the caller.
func (o *Orchestrator) Dispatch(ctx context.Context, req DispatchRequest) (RunSummary, error) {
	if err := req.Validate(); err != nil {
		return RunSummary{}, err
	}

	var resp DispatchResponse
	if err := o.source.Invoke(ctx, ActionSendReminders, req, &resp); err != nil {
		return RunSummary{}, &DispatchError{Err: err}
	}
	if resp.Results.Errors == nil {
		resp.Results.Errors = []string{}
	}
	return resp.Results, nil
}

func (o *Orchestrator) upcomingAt(ctx context.Context, orgID string, now time.Time) (UpcomingSet, error) {
	set := UpcomingSet{
		Quotes:   []QuoteReminder{},
		Invoices: []InvoiceReminder{},
	}

	quotes, err := SentQuotes(ctx, o.source, orgID)
	if err != nil {
		return UpcomingSet{}, err
	}
	for _, q := range quotes {
		days, due := o.evaluator.QuoteDue(q, now)
		if !due {
			continue
		}
		set.Quotes = append(set.Quotes, QuoteReminder{
			ID:            q.ID,
			QuoteNumber:   q.QuoteNumber,
			Title:         q.Title,
			ClientName:    q.ClientName,
			CreatedAt:     q.CreatedAt,
			DaysSinceSent: days,
		})
	}

	invoices, err := OpenInvoices(ctx, o.source, orgID)
	if err != nil {
		return UpcomingSet{}, err
	}
	for _, inv := range invoices {
		days, due := o.evaluator.InvoiceDue(inv, now)
		if !due {
			continue
		}
		set.Invoices = append(set.Invoices, InvoiceReminder{
			ID:            inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			ClientName:    inv.ClientName,
			Amount:        inv.Amount,
			Currency:      inv.Currency,
			DueDate:       *inv.DueDate,
			Status:        inv.Status,
			DaysToDue:     days,
		})
	}

	return set, nil
}

func (o *Orchestrator) statsAt(ctx context.Context, orgID string, windowDays int, now time.Time) (Stats, error) {
	since := now.Add(-time.Duration(windowDays) * day)

	var logs []models.ReminderLog
	q := datasource.Query{
		Collection: datasource.CollectionReminderLogs,
		Filters: []datasource.Filter{
			datasource.Eq("organisation_id", orgID),
			datasource.Gte("sent_at", since),
		},
	}
	if err := o.source.Query(ctx, q, &logs); err != nil {
		return Stats{}, dataError(q.Collection, err)
	}
	return Aggregate(logs), nil
}

func validateStatsArgs(orgID string, windowDays int) error {
	if orgID == "" {
		return &ValidationError{Field: "organisation", Reason: "required"}
	}
	if windowDays <= 0 {
		return &ValidationError{Field: "days", Reason: "must be positive"}
	}
	return nil
}

func dataError(collection string, err error) error {
	var de *DataError
	if errors.As(err, &de) {
		return err
	}
	return &DataError{Collection: collection, Err: err}
}
