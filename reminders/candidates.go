package reminders

import (
	"context"

	"github.com/yourusername/crm-reminders/datasource"
	"github.com/yourusername/crm-reminders/models"
)

// Querier is the read side of a data source.
type Querier interface {
	Query(ctx context.Context, q datasource.Query, dest any) error
}

// SentQuotes loads the quotes that can receive a follow-up. An empty orgID
// loads them for every organisation.
func SentQuotes(ctx context.Context, src Querier, orgID string) ([]models.Quote, error) {
	q := datasource.Query{
		Collection: datasource.CollectionQuotes,
		Filters:    []datasource.Filter{datasource.Eq("status", models.QuoteStatusSent)},
		OrderBy:    "created_at",
	}
	if orgID != "" {
		q.Filters = append(q.Filters, datasource.Eq("organisation_id", orgID))
	}

	var quotes []models.Quote
	if err := src.Query(ctx, q, &quotes); err != nil {
		return nil, dataError(q.Collection, err)
	}
	return quotes, nil
}

// OpenInvoices loads sent or overdue invoices that have a due date. An empty
// orgID loads them for every organisation.
func OpenInvoices(ctx context.Context, src Querier, orgID string) ([]models.Invoice, error) {
	q := datasource.Query{
		Collection: datasource.CollectionInvoices,
		Filters: []datasource.Filter{
			datasource.In("status", models.InvoiceStatusSent, models.InvoiceStatusOverdue),
			datasource.NotNull("due_date"),
		},
		OrderBy: "due_date",
	}
	if orgID != "" {
		q.Filters = append(q.Filters, datasource.Eq("organisation_id", orgID))
	}

	var invoices []models.Invoice
	if err := src.Query(ctx, q, &invoices); err != nil {
		return nil, dataError(q.Collection, err)
	}
	return invoices, nil
}
