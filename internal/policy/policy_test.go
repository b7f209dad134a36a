package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/models"
)

func pct(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// simulate feeds n sequential clicks through p and returns the conversions
// after each click.
func simulate(p Policy, n int64) []int64 {
	var conversions int64
	trace := make([]int64, 0, n)
	for clicks := int64(1); clicks <= n; clicks++ {
		if p.ShouldConvert(clicks, conversions) {
			conversions++
		}
		trace = append(trace, conversions)
	}
	return trace
}

func TestFromLink(t *testing.T) {
	tests := []struct {
		name    string
		link    models.Link
		want    Policy
		wantErr bool
	}{
		{name: "ratio", link: models.Link{Mode: models.ModeRatio, Ratio: 5}, want: FixedRatio{Every: 5}},
		{name: "legacy ratio without mode", link: models.Link{Ratio: 3}, want: FixedRatio{Every: 3}},
		{name: "ratio zero", link: models.Link{Mode: models.ModeRatio}, wantErr: true},
		{name: "no mode no ratio", link: models.Link{}, wantErr: true},
		{name: "unknown mode", link: models.Link{Mode: "random"}, wantErr: true},
		{
			name: "smart batch",
			link: models.Link{Mode: models.ModeSmart, BatchConv: 1, BatchClicks: 10},
			want: Smart{BatchConv: 1, BatchClicks: 10},
		},
		{
			name: "smart band",
			link: models.Link{Mode: models.ModeSmart, MinCR: pct("5"), MaxCR: pct("15")},
			want: Smart{MinCR: pct("5"), MaxCR: pct("15")},
		},
		{name: "smart without config", link: models.Link{Mode: models.ModeSmart}, wantErr: true},
		{name: "smart zero batch clicks", link: models.Link{Mode: models.ModeSmart, BatchConv: 1}, wantErr: true},
		{name: "smart conv above clicks", link: models.Link{Mode: models.ModeSmart, BatchConv: 11, BatchClicks: 10}, wantErr: true},
		{name: "smart half band", link: models.Link{Mode: models.ModeSmart, MinCR: pct("5")}, wantErr: true},
		{name: "smart inverted band", link: models.Link{Mode: models.ModeSmart, MinCR: pct("20"), MaxCR: pct("10")}, wantErr: true},
		{name: "smart band above 100", link: models.Link{Mode: models.ModeSmart, MinCR: pct("50"), MaxCR: pct("150")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromLink(tt.link)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
				var fieldErr apperrors.ErrPolicyField
				assert.ErrorAs(t, err, &fieldErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFixedRatio(t *testing.T) {
	p := FixedRatio{Every: 5}

	trace := simulate(p, 12)

	assert.Equal(t, int64(2), trace[11])
	assert.Equal(t, int64(0), trace[3])
	assert.Equal(t, int64(1), trace[4])
	assert.Equal(t, int64(2), trace[9])

	for n := int64(1); n <= 12; n++ {
		assert.Equal(t, n/5, trace[n-1], "after %d clicks", n)
	}
	assert.False(t, p.ShouldConvert(0, 0))
}

func TestFixedRatioOne(t *testing.T) {
	trace := simulate(FixedRatio{Every: 1}, 4)
	assert.Equal(t, []int64{1, 2, 3, 4}, trace)
}

func TestSmartBatch(t *testing.T) {
	p := Smart{BatchConv: 1, BatchClicks: 10}

	trace := simulate(p, 25)

	assert.Equal(t, int64(2), trace[24])
	assert.Equal(t, int64(0), trace[8])
	assert.Equal(t, int64(1), trace[9], "first conversion at click 10 at the latest")
	assert.Equal(t, int64(2), trace[19], "second conversion at click 20 at the latest")
}

func TestSmartTracksFloorWithinOne(t *testing.T) {
	policies := []Smart{
		{BatchConv: 1, BatchClicks: 3},
		{BatchConv: 7, BatchClicks: 20},
		{BatchConv: 2, BatchClicks: 2},
		{MinCR: pct("2.5"), MaxCR: pct("7.5")},
		{BatchConv: 1, BatchClicks: 2, MinCR: pct("10"), MaxCR: pct("20")},
	}

	for _, p := range policies {
		trace := simulate(p, 500)
		for i, conv := range trace {
			n := int64(i + 1)
			ideal := p.Ideal(n)
			assert.LessOrEqual(t, conv, n)
			assert.LessOrEqual(t, ideal-conv, int64(1))
			assert.LessOrEqual(t, conv, ideal, "never overshoots")
		}
		assert.Equal(t, p.Ideal(500), trace[499])
	}
}

func TestSmartExactThirds(t *testing.T) {
	p := Smart{BatchConv: 1, BatchClicks: 3}

	assert.Equal(t, int64(1), p.Ideal(3))
	assert.Equal(t, int64(33), p.Ideal(99))
}

func TestSmartBand(t *testing.T) {
	t.Run("midpoint", func(t *testing.T) {
		p := Smart{MinCR: pct("5"), MaxCR: pct("15")}
		assert.True(t, p.TargetPercent().Equal(decimal.NewFromInt(10)))
		assert.Equal(t, int64(10), p.Ideal(100))
	})

	t.Run("batch inside band wins", func(t *testing.T) {
		p := Smart{BatchConv: 1, BatchClicks: 10, MinCR: pct("5"), MaxCR: pct("15")}
		assert.Equal(t, int64(10), p.Ideal(100))
	})

	t.Run("batch above band clamps to max", func(t *testing.T) {
		p := Smart{BatchConv: 1, BatchClicks: 2, MinCR: pct("10"), MaxCR: pct("20")}
		assert.True(t, p.TargetPercent().Equal(decimal.NewFromInt(20)))
		assert.Equal(t, int64(20), p.Ideal(100))
	})

	t.Run("batch below band clamps to min", func(t *testing.T) {
		p := Smart{BatchConv: 1, BatchClicks: 100, MinCR: pct("10"), MaxCR: pct("20")}
		assert.Equal(t, int64(10), p.Ideal(100))
	})
}

func TestSmartEdgeCases(t *testing.T) {
	p := Smart{BatchConv: 1, BatchClicks: 10}
	assert.False(t, p.ShouldConvert(0, 0))
	assert.False(t, p.ShouldConvert(-1, 0))

	full := Smart{BatchConv: 1, BatchClicks: 1}
	assert.False(t, full.ShouldConvert(3, 3), "conversions never exceed clicks")
	assert.True(t, full.ShouldConvert(3, 2))

	zero := Smart{BatchConv: 0, BatchClicks: 10}
	assert.Equal(t, []int64{0, 0, 0}, simulate(zero, 3))
}

func TestSmartBatchLargeCounters(t *testing.T) {
	// clicks * BatchConv is far beyond int64.
	p := Smart{BatchConv: 1 << 40, BatchClicks: 1 << 41}
	assert.Equal(t, int64(1<<39), p.Ideal(1<<40))

	odd := Smart{BatchConv: 999_999_999_999, BatchClicks: 1_000_000_000_000}
	clicks := int64(1_000_000_000_000_000)
	assert.Equal(t, int64(999_999_999_999_000), odd.Ideal(clicks))
	assert.True(t, odd.ShouldConvert(clicks, 999_999_999_998_999))
	assert.False(t, odd.ShouldConvert(clicks, 999_999_999_999_000))
}
