package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	QuoteStatusDraft    = "draft"
	QuoteStatusSent     = "sent"
	QuoteStatusAccepted = "accepted"
	QuoteStatusRejected = "rejected"
	QuoteStatusExpired  = "expired"
)

// Quote is an offer sent to a client. CreatedAt is the instant it was sent.
type Quote struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	OrganisationID string    `gorm:"type:uuid;index;not null" json:"organisation_id"`
	QuoteNumber    string    `gorm:"size:50;not null" json:"quote_number"`
	Title          string    `gorm:"size:255" json:"title"`
	ClientName     string    `gorm:"size:255" json:"client_name"`
	ClientEmail    string    `gorm:"size:255" json:"client_email"`
	Status         string    `gorm:"size:20;default:'draft';index" json:"status"` // draft, sent, accepted, rejected, expired
}

// TableName overrides the table name
func (Quote) TableName() string {
	return "quotes"
}

func (q *Quote) BeforeCreate(_ *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}
