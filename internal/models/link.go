package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Attribution modes stored in Link.Mode.
const (
	ModeRatio = "ratio"
	ModeSmart = "smart"
)

// Link représente un lien d'affiliation dans la base de données.
// ShortID is either the administrator-chosen alias or a generated token.
type Link struct {
	ShortID        string  `gorm:"primaryKey;size:64" json:"short_id"`
	Name           string  `gorm:"size:255" json:"name"`
	OriginalURL    string  `gorm:"not null" json:"original_url"`
	AffiliateEmail string  `gorm:"size:255;index" json:"affiliate_email"`
	Alias          *string `gorm:"size:64" json:"alias,omitempty"`

	Mode        string              `gorm:"size:16" json:"mode"`
	Ratio       int64               `gorm:"not null;default:0" json:"ratio,omitempty"`
	MinCR       decimal.NullDecimal `gorm:"column:min_cr;type:decimal(7,4)" json:"min_cr"`
	MaxCR       decimal.NullDecimal `gorm:"column:max_cr;type:decimal(7,4)" json:"max_cr"`
	BatchConv   int64               `gorm:"not null;default:0" json:"batch_conv,omitempty"`
	BatchClicks int64               `gorm:"not null;default:0" json:"batch_clicks,omitempty"`

	Clicks      int64 `gorm:"not null;default:0" json:"clicks"`
	Conversions int64 `gorm:"not null;default:0" json:"conversions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversionRate returns conversions/clicks as a percentage rounded to two places.
func (l Link) ConversionRate() decimal.Decimal {
	if l.Clicks <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(l.Conversions).
		Shift(2).
		Div(decimal.NewFromInt(l.Clicks)).
		Round(2)
}
