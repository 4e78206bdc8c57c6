package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReminderTypeQuoteFollowup  = "quote_followup"
	ReminderTypeInvoicePayment = "invoice_payment"
)

var (
	ErrReminderTarget = errors.New("reminder log must reference exactly one of quote or invoice")
	ErrReminderType   = errors.New("reminder type does not match its target")
)

// ReminderLog records a single dispatch attempt. Rows are written by the
// dispatch action only and are never updated or deleted.
type ReminderLog struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	OrganisationID string    `gorm:"type:uuid;index;not null" json:"organisation_id"`
	QuoteID        *string   `gorm:"type:uuid;index" json:"quote_id"`
	InvoiceID      *string   `gorm:"type:uuid;index" json:"invoice_id"`
	ReminderType   string    `gorm:"size:30;not null" json:"reminder_type"` // quote_followup, invoice_payment
	DaysOffset     int       `gorm:"not null" json:"days_offset"`
	EmailSent      bool      `gorm:"not null;default:false" json:"email_sent"`
	EmailError     *string   `gorm:"type:text" json:"email_error"`
	SentAt         time.Time `gorm:"index;not null" json:"sent_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName overrides the table name
func (ReminderLog) TableName() string {
	return "reminder_logs"
}

func (l *ReminderLog) Validate() error {
	hasQuote := l.QuoteID != nil && *l.QuoteID != ""
	hasInvoice := l.InvoiceID != nil && *l.InvoiceID != ""
	if hasQuote == hasInvoice {
		return ErrReminderTarget
	}
	switch {
	case hasQuote && l.ReminderType != ReminderTypeQuoteFollowup:
		return ErrReminderType
	case hasInvoice && l.ReminderType != ReminderTypeInvoicePayment:
		return ErrReminderType
	}
	return nil
}

func (l *ReminderLog) BeforeCreate(_ *gorm.DB) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
