package reminders

// ActionSendReminders is the name of the dispatch action.
const ActionSendReminders = "send-reminders"

const (
	DispatchQuotes   = "quotes"
	DispatchInvoices = "invoices"
)

// DispatchRequest is the send-reminders request body. An empty
// OrganizationID covers every organisation; an empty Type covers both.
type DispatchRequest struct {
	OrganizationID string `json:"organizationId,omitempty"`
	Type           string `json:"type,omitempty"`
	DryRun         bool   `json:"dryRun,omitempty"`
}

func (r DispatchRequest) Validate() error {
	switch r.Type {
	case "", DispatchQuotes, DispatchInvoices:
		return nil
	default:
		return &ValidationError{Field: "type", Reason: `must be "quotes" or "invoices"`}
	}
}

func (r DispatchRequest) IncludesQuotes() bool {
	return r.Type == "" || r.Type == DispatchQuotes
}

func (r DispatchRequest) IncludesInvoices() bool {
	return r.Type == "" || r.Type == DispatchInvoices
}

// RunSummary reports one dispatch run. Errors lists per-item failures that
// did not fail the run.
type RunSummary struct {
	QuotesProcessed   int      `json:"quotesProcessed"`
	InvoicesProcessed int      `json:"invoicesProcessed"`
	EmailsSent        int      `json:"emailsSent"`
	Errors            []string `json:"errors"`
}

type DispatchResponse struct {
	Results RunSummary `json:"results"`
}
