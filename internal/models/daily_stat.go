package models

// DailyStat stores per-link counters for one UTC day.
type DailyStat struct {
	ShortID     string `gorm:"primaryKey;size:64" json:"short_id"`
	Day         string `gorm:"primaryKey;size:10" json:"day"`
	Clicks      int64  `gorm:"not null;default:0" json:"clicks"`
	Conversions int64  `gorm:"not null;default:0" json:"conversions"`
}

// DayTotal is a site-wide sum of DailyStat rows for one day.
type DayTotal struct {
	Day         string `json:"day"`
	Clicks      int64  `json:"clicks"`
	Conversions int64  `json:"conversions"`
}
