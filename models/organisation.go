package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Organisation struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	ReminderFromEmail string    `gorm:"size:255" json:"reminder_from_email"`
}

// TableName overrides the table name
func (Organisation) TableName() string {
	return "organisations"
}

func (o *Organisation) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
