package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yourusername/crm-reminders/clock"
	"github.com/yourusername/crm-reminders/datasource"
	"github.com/yourusername/crm-reminders/email"
	"github.com/yourusername/crm-reminders/models"
	"github.com/yourusername/crm-reminders/reminders"
)

const day = 24 * time.Hour

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// MockMailer records every message and fails for the addresses in failFor.
type MockMailer struct {
	mu      sync.Mutex
	sent    []email.Message
	failFor map[string]error
}

func (m *MockMailer) SendWithRetry(ctx context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[msg.To]; ok {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Organisation{}, &models.Quote{}, &models.Invoice{}, &models.ReminderLog{}))
	return db
}

func at(d time.Duration) *time.Time {
	t := testNow.Add(d)
	return &t
}

func seed(t *testing.T, db *gorm.DB) {
	orgs := []models.Organisation{
		{ID: "org-1", Name: "Acme Roofing", ReminderFromEmail: "billing@acme.test"},
		{ID: "org-2", Name: "Other Co"},
	}
	require.NoError(t, db.Create(&orgs).Error)

	quotes := []models.Quote{
		{ID: "q-3", OrganisationID: "org-1", QuoteNumber: "Q-3", Title: "Roof repair", ClientName: "Jo", ClientEmail: "jo@client.test", Status: models.QuoteStatusSent, CreatedAt: testNow.Add(-3 * day)},
		{ID: "q-5", OrganisationID: "org-1", QuoteNumber: "Q-5", ClientEmail: "sam@client.test", Status: models.QuoteStatusSent, CreatedAt: testNow.Add(-5 * day)},
		{ID: "q-draft", OrganisationID: "org-1", QuoteNumber: "Q-D", ClientEmail: "kim@client.test", Status: models.QuoteStatusDraft, CreatedAt: testNow.Add(-7 * day)},
		{ID: "q-other", OrganisationID: "org-2", QuoteNumber: "Q-O", ClientEmail: "lee@client.test", Status: models.QuoteStatusSent, CreatedAt: testNow.Add(-7 * day)},
	}
	require.NoError(t, db.Create(&quotes).Error)

	invoices := []models.Invoice{
		{ID: "inv-soon", OrganisationID: "org-1", InvoiceNumber: "INV-SOON", ClientEmail: "jo@client.test", Amount: 120, Currency: "EUR", Status: models.InvoiceStatusSent, DueDate: at(3 * day)},
		{ID: "inv-late", OrganisationID: "org-1", InvoiceNumber: "INV-LATE", ClientEmail: "ash@client.test", Amount: 80, Currency: "EUR", Status: models.InvoiceStatusSent, DueDate: at(-7 * day)},
		{ID: "inv-two", OrganisationID: "org-1", InvoiceNumber: "INV-TWO", ClientEmail: "ash@client.test", Amount: 40, Currency: "EUR", Status: models.InvoiceStatusSent, DueDate: at(-2 * day)},
		{ID: "inv-paid", OrganisationID: "org-1", InvoiceNumber: "INV-PAID", ClientEmail: "ash@client.test", Amount: 10, Currency: "EUR", Status: models.InvoiceStatusPaid, DueDate: at(-7 * day)},
		{ID: "inv-nodue", OrganisationID: "org-1", InvoiceNumber: "INV-NODUE", ClientEmail: "ash@client.test", Amount: 10, Currency: "EUR", Status: models.InvoiceStatusSent},
	}
	require.NoError(t, db.Create(&invoices).Error)
}

func newTestAction(db *gorm.DB, mailer Mailer) (*Action, *datasource.Database) {
	store := datasource.NewDatabase(db)
	action := NewAction(
		store,
		reminders.NewEvaluator(reminders.DefaultTriggers()),
		mailer,
		rate.NewLimiter(rate.Inf, 1),
		clock.Fixed(testNow),
		zap.NewNop(),
	)
	return action, store
}

func invoiceStatus(t *testing.T, db *gorm.DB, id string) string {
	var inv models.Invoice
	require.NoError(t, db.First(&inv, "id = ?", id).Error)
	return inv.Status
}

func countLogs(t *testing.T, db *gorm.DB) int64 {
	var count int64
	require.NoError(t, db.Model(&models.ReminderLog{}).Count(&count).Error)
	return count
}

func TestRunSendsAndLogs(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	mailer := &MockMailer{}
	action, _ := newTestAction(db, mailer)

	summary, err := action.Run(context.Background(), reminders.DispatchRequest{OrganizationID: "org-1"})
	require.NoError(t, err)

	assert.Equal(t, reminders.RunSummary{
		QuotesProcessed:   1,
		InvoicesProcessed: 2,
		EmailsSent:        3,
		Errors:            []string{},
	}, summary)

	require.Len(t, mailer.sent, 3)
	assert.Equal(t, "jo@client.test", mailer.sent[0].To)
	assert.Equal(t, "Acme Roofing", mailer.sent[0].FromName)
	assert.Equal(t, "billing@acme.test", mailer.sent[0].ReplyTo)
	assert.Equal(t, email.TemplateQuoteFollowup, mailer.sent[0].Template)
	assert.Equal(t, 3, mailer.sent[0].Data.Days)

	var logs []models.ReminderLog
	require.NoError(t, db.Order("days_offset").Find(&logs).Error)
	require.Len(t, logs, 3)
	for _, l := range logs {
		assert.True(t, l.EmailSent)
		assert.Nil(t, l.EmailError)
		assert.Equal(t, "org-1", l.OrganisationID)
		assert.True(t, l.SentAt.Equal(testNow))
	}
	assert.Equal(t, -3, logs[0].DaysOffset)
	assert.Equal(t, models.ReminderTypeInvoicePayment, logs[0].ReminderType)
	require.NotNil(t, logs[0].InvoiceID)
	assert.Equal(t, "inv-soon", *logs[0].InvoiceID)
	assert.Equal(t, 3, logs[1].DaysOffset)
	require.NotNil(t, logs[1].QuoteID)
	assert.Equal(t, "q-3", *logs[1].QuoteID)
	assert.Equal(t, 7, logs[2].DaysOffset)
}

func TestRunMarksPastDueInvoicesOverdue(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	action, _ := newTestAction(db, &MockMailer{})

	_, err := action.Run(context.Background(), reminders.DispatchRequest{OrganizationID: "org-1"})
	require.NoError(t, err)

	assert.Equal(t, models.InvoiceStatusOverdue, invoiceStatus(t, db, "inv-late"))
	assert.Equal(t, models.InvoiceStatusOverdue, invoiceStatus(t, db, "inv-two"))
	assert.Equal(t, models.InvoiceStatusSent, invoiceStatus(t, db, "inv-soon"))
	assert.Equal(t, models.InvoiceStatusPaid, invoiceStatus(t, db, "inv-paid"))
	assert.Equal(t, models.InvoiceStatusSent, invoiceStatus(t, db, "inv-nodue"))
}

func TestRunRecordsSendFailures(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	mailer := &MockMailer{failFor: map[string]error{"ash@client.test": errors.New("mailbox full")}}
	action, _ := newTestAction(db, mailer)

	summary, err := action.Run(context.Background(), reminders.DispatchRequest{OrganizationID: "org-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.QuotesProcessed)
	assert.Equal(t, 2, summary.InvoicesProcessed)
	assert.Equal(t, 2, summary.EmailsSent)
	assert.Equal(t, []string{"invoice INV-LATE: mailbox full"}, summary.Errors)

	var failed models.ReminderLog
	require.NoError(t, db.First(&failed, "invoice_id = ?", "inv-late").Error)
	assert.False(t, failed.EmailSent)
	require.NotNil(t, failed.EmailError)
	assert.Equal(t, "mailbox full", *failed.EmailError)
}

func TestRunSkipsItemsAlreadyReminded(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	mailer := &MockMailer{failFor: map[string]error{"ash@client.test": errors.New("mailbox full")}}
	action, _ := newTestAction(db, mailer)
	ctx := context.Background()
	req := reminders.DispatchRequest{OrganizationID: "org-1"}

	_, err := action.Run(ctx, req)
	require.NoError(t, err)

	// the failed invoice is retried, the delivered ones are not
	mailer.failFor = nil
	summary, err := action.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.QuotesProcessed)
	assert.Equal(t, 1, summary.InvoicesProcessed)
	assert.Equal(t, 1, summary.EmailsSent)
	assert.Equal(t, int64(4), countLogs(t, db))
}

func TestRunDryRunChangesNothing(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	mailer := &MockMailer{}
	action, _ := newTestAction(db, mailer)

	summary, err := action.Run(context.Background(), reminders.DispatchRequest{OrganizationID: "org-1", DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, reminders.RunSummary{
		QuotesProcessed:   1,
		InvoicesProcessed: 2,
		EmailsSent:        0,
		Errors:            []string{},
	}, summary)
	assert.Empty(t, mailer.sent)
	assert.Equal(t, int64(0), countLogs(t, db))
	assert.Equal(t, models.InvoiceStatusSent, invoiceStatus(t, db, "inv-late"))
}

func TestDryRunLeavesStatisticsUnchanged(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	action, store := newTestAction(db, &MockMailer{})
	store.Register(reminders.ActionSendReminders, action.Handle)

	orch := reminders.NewOrchestrator(store, reminders.NewEvaluator(reminders.DefaultTriggers()), clock.Fixed(testNow))
	ctx := context.Background()

	_, err := orch.Dispatch(ctx, reminders.DispatchRequest{OrganizationID: "org-1"})
	require.NoError(t, err)

	before, err := orch.Statistics(ctx, "org-1", 30)
	require.NoError(t, err)
	assert.Equal(t, 3, before.TotalReminders)

	summary, err := orch.Dispatch(ctx, reminders.DispatchRequest{OrganizationID: "org-1", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.EmailsSent)

	after, err := orch.Statistics(ctx, "org-1", 30)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunTypeFilter(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	mailer := &MockMailer{}
	action, _ := newTestAction(db, mailer)

	summary, err := action.Run(context.Background(), reminders.DispatchRequest{OrganizationID: "org-1", Type: reminders.DispatchQuotes})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.QuotesProcessed)
	assert.Equal(t, 0, summary.InvoicesProcessed)
	assert.Equal(t, models.InvoiceStatusSent, invoiceStatus(t, db, "inv-late"))
}

func TestRunAllOrganisations(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	mailer := &MockMailer{}
	action, _ := newTestAction(db, mailer)

	summary, err := action.Run(context.Background(), reminders.DispatchRequest{Type: reminders.DispatchQuotes})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.QuotesProcessed)
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "Other Co", mailer.sent[0].FromName)
	assert.Equal(t, "Acme Roofing", mailer.sent[1].FromName)
}

func TestHandle(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	action, _ := newTestAction(db, &MockMailer{})

	result, err := action.Handle(context.Background(), json.RawMessage(`{"organizationId":"org-1","type":"invoices","dryRun":true}`))
	require.NoError(t, err)

	resp, ok := result.(reminders.DispatchResponse)
	require.True(t, ok)
	assert.Equal(t, 2, resp.Results.InvoicesProcessed)
	assert.Equal(t, 0, resp.Results.QuotesProcessed)

	_, err = action.Handle(context.Background(), json.RawMessage(`{"type":"contracts"}`))
	var validationErr *reminders.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = action.Handle(context.Background(), json.RawMessage(`{not json`))
	assert.ErrorAs(t, err, &validationErr)
}

func TestInvoiceSubject(t *testing.T) {
	assert.Equal(t, "Invoice INV-1 is due in 3 days", invoiceSubject("INV-1", -3))
	assert.Equal(t, "Invoice INV-1 is due today", invoiceSubject("INV-1", 0))
	assert.Equal(t, "Invoice INV-1 is 7 days overdue", invoiceSubject("INV-1", 7))
}
