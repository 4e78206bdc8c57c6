package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

type Invoice struct {
	ID             string     `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	OrganisationID string     `gorm:"type:uuid;index;not null" json:"organisation_id"`
	InvoiceNumber  string     `gorm:"size:50;not null" json:"invoice_number"`
	ClientName     string     `gorm:"size:255" json:"client_name"`
	ClientEmail    string     `gorm:"size:255" json:"client_email"`
	Amount         float64    `gorm:"not null" json:"amount"`
	Currency       string     `gorm:"size:10;default:'EUR'" json:"currency"`
	DueDate        *time.Time `json:"due_date"`
	Status         string     `gorm:"size:20;default:'draft';index" json:"status"` // draft, sent, paid, overdue, cancelled
}

// TableName overrides the table name
func (Invoice) TableName() string {
	return "invoices"
}

func (i *Invoice) BeforeCreate(_ *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
