// Package policy decodes a link's attribution settings into one of two
// policy variants and decides whether a click counts as a conversion.
//
// Both variants are evaluated against the link counters as they stand right
// after the click being decided was counted.
package policy

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Policy is implemented by FixedRatio and Smart only.
type Policy interface {
	Mode() string
	// Ideal returns how many conversions a link with the given click count should have.
	Ideal(clicks int64) int64
	// ShouldConvert reports whether the click that brought the link to
	// clicks, with conversions already recorded, is a conversion.
	ShouldConvert(clicks, conversions int64) bool

	sealed()
}

// FixedRatio converts every Every-th click.
type FixedRatio struct {
	Every int64
}

func (FixedRatio) Mode() string { return models.ModeRatio }
func (FixedRatio) sealed()      {}

func (p FixedRatio) Ideal(clicks int64) int64 {
	if clicks <= 0 {
		return 0
	}
	return clicks / p.Every
}

func (p FixedRatio) ShouldConvert(clicks, conversions int64) bool {
	if clicks <= 0 || conversions >= clicks {
		return false
	}
	return clicks%p.Every == 0
}

// Smart lets conversions catch up with floor(clicks * target) and never overshoots it.
// The target is BatchConv/BatchClicks when a batch is set, clamped to the
// [MinCR, MaxCR] percentage band when one is set. With no batch the band
// midpoint is used.
type Smart struct {
	BatchConv   int64
	BatchClicks int64
	MinCR       decimal.NullDecimal
	MaxCR       decimal.NullDecimal
}

func (Smart) Mode() string { return models.ModeSmart }
func (Smart) sealed()      {}

func (p Smart) hasBatch() bool { return p.BatchClicks > 0 }
func (p Smart) hasBand() bool  { return p.MinCR.Valid && p.MaxCR.Valid }

// TargetPercent is the effective target conversion rate in percent.
func (p Smart) TargetPercent() decimal.Decimal {
	if bound, ok := p.clampBound(); ok {
		return bound
	}
	if p.hasBatch() {
		return decimal.NewFromInt(p.BatchConv).Mul(hundred).Div(decimal.NewFromInt(p.BatchClicks))
	}
	return p.midpoint()
}

func (p Smart) midpoint() decimal.Decimal {
	return p.MinCR.Decimal.Add(p.MaxCR.Decimal).Div(decimal.NewFromInt(2))
}

// clampBound returns the nearest band bound when the batch ratio falls outside the band.
func (p Smart) clampBound() (decimal.Decimal, bool) {
	if !p.hasBatch() || !p.hasBand() {
		return decimal.Decimal{}, false
	}
	// batchConv/batchClicks*100 compared with the bound, cross-multiplied to stay exact.
	scaled := decimal.NewFromInt(p.BatchConv).Mul(hundred)
	clicks := decimal.NewFromInt(p.BatchClicks)
	if scaled.LessThan(p.MinCR.Decimal.Mul(clicks)) {
		return p.MinCR.Decimal, true
	}
	if scaled.GreaterThan(p.MaxCR.Decimal.Mul(clicks)) {
		return p.MaxCR.Decimal, true
	}
	return decimal.Decimal{}, false
}

func (p Smart) Ideal(clicks int64) int64 {
	if clicks <= 0 {
		return 0
	}
	if bound, ok := p.clampBound(); ok {
		return percentOf(clicks, bound)
	}
	if p.hasBatch() {
		return batchShare(clicks, p.BatchConv, p.BatchClicks)
	}
	if p.hasBand() {
		return percentOf(clicks, p.midpoint())
	}
	return 0
}

func (p Smart) ShouldConvert(clicks, conversions int64) bool {
	if clicks <= 0 || conversions >= clicks {
		return false
	}
	return conversions < p.Ideal(clicks)
}

// batchShare returns floor(clicks * conv / batch) without overflowing int64.
// conv <= batch keeps the result within clicks.
func batchShare(clicks, conv, batch int64) int64 {
	q, _ := decimal.NewFromInt(clicks).Mul(decimal.NewFromInt(conv)).QuoRem(decimal.NewFromInt(batch), 0)
	return q.IntPart()
}

// percentOf returns floor(clicks * pct / 100). Shift keeps the division exact.
func percentOf(clicks int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(clicks).Mul(pct).Shift(-2).Floor().IntPart()
}

// FromLink decodes the link's policy fields. Errors wrap ErrInvalidConfiguration.
func FromLink(link models.Link) (Policy, error) {
	switch link.Mode {
	case models.ModeRatio:
		return decodeRatio(link)
	case "":
		// Records written before modes existed only carry a ratio.
		if link.Ratio > 0 {
			return decodeRatio(link)
		}
		return nil, apperrors.ErrPolicyField{Mode: link.Mode, Field: "mode", Reason: "is missing"}
	case models.ModeSmart:
		return decodeSmart(link)
	default:
		return nil, apperrors.ErrPolicyField{Mode: link.Mode, Field: "mode", Reason: "is unknown"}
	}
}

func decodeRatio(link models.Link) (Policy, error) {
	if link.Ratio < 1 {
		return nil, apperrors.ErrPolicyField{Mode: models.ModeRatio, Field: "ratio", Reason: "must be at least 1"}
	}
	return FixedRatio{Every: link.Ratio}, nil
}

func decodeSmart(link models.Link) (Policy, error) {
	p := Smart{
		BatchConv:   link.BatchConv,
		BatchClicks: link.BatchClicks,
		MinCR:       link.MinCR,
		MaxCR:       link.MaxCR,
	}

	if link.MinCR.Valid != link.MaxCR.Valid {
		return nil, apperrors.ErrPolicyField{Mode: models.ModeSmart, Field: "min_cr/max_cr", Reason: "must be set together"}
	}
	if p.hasBand() {
		minCR, maxCR := p.MinCR.Decimal, p.MaxCR.Decimal
		if minCR.IsNegative() || maxCR.GreaterThan(hundred) || minCR.GreaterThan(maxCR) {
			return nil, apperrors.ErrPolicyField{Mode: models.ModeSmart, Field: "min_cr/max_cr", Reason: "must satisfy 0 <= min_cr <= max_cr <= 100"}
		}
	}

	switch {
	case link.BatchClicks < 0:
		return nil, apperrors.ErrPolicyField{Mode: models.ModeSmart, Field: "batch_clicks", Reason: "must not be negative"}
	case link.BatchClicks == 0 && link.BatchConv != 0:
		return nil, apperrors.ErrPolicyField{Mode: models.ModeSmart, Field: "batch_clicks", Reason: "must be positive when batch_conv is set"}
	case link.BatchConv < 0 || link.BatchConv > link.BatchClicks:
		return nil, apperrors.ErrPolicyField{Mode: models.ModeSmart, Field: "batch_conv", Reason: "must be between 0 and batch_clicks"}
	}

	if !p.hasBatch() && !p.hasBand() {
		return nil, apperrors.ErrPolicyField{Mode: models.ModeSmart, Field: "batch_clicks", Reason: "or min_cr/max_cr must be set"}
	}
	return p, nil
}
