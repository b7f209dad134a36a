package models

import "time"

// ClickEvent represents a resolved click passed through channels to the worker pool.
// Attributed is false when the click transaction failed on the request path and
// must be retried out of band.
type ClickEvent struct {
	ShortID        string
	LinkName       string
	AffiliateEmail string
	Timestamp      time.Time
	UserAgent      string
	IPAddress      string
	Attributed     bool
	Converted      bool
}

// ClickOutcome is the state of a link right after its click transaction committed.
type ClickOutcome struct {
	Link      Link
	Converted bool
	Day       string
}
