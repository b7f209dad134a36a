package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity types.
const (
	ActivityClick      = "click"
	ActivityConversion = "conversion"
	ActivityLogin      = "login"
	ActivityBroadcast  = "broadcast"
)

// Activity is an append-only telemetry entry shown in the admin feed.
type Activity struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type           string    `gorm:"size:16;not null" json:"type"`
	ShortID        string    `gorm:"size:64" json:"short_id,omitempty"`
	LinkName       string    `gorm:"size:255" json:"link_name,omitempty"`
	AffiliateEmail string    `gorm:"size:255" json:"affiliate_email,omitempty"`
	Subject        string    `gorm:"size:255" json:"subject,omitempty"`
	IP             string    `gorm:"size:50" json:"ip,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (a *Activity) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ValidActivityType reports whether t is one of the known activity types.
func ValidActivityType(t string) bool {
	switch t {
	case ActivityClick, ActivityConversion, ActivityLogin, ActivityBroadcast:
		return true
	}
	return false
}
