package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosfin/analyst/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bars(closes map[time.Time]float64) []domain.OHLCVBar {
	out := make([]domain.OHLCVBar, 0, len(closes))
	for date, c := range closes {
		out = append(out, domain.OHLCVBar{Date: date, Close: c})
	}
	return out
}

func TestAlignSeries_IntersectsTradingDays(t *testing.T) {
	// SBER misses Jan 3, GAZP misses Jan 4; only days both traded count.
	series := map[string][]domain.OHLCVBar{
		"SBER": bars(map[time.Time]float64{
			day(2024, 1, 2): 100,
			day(2024, 1, 4): 104,
			day(2024, 1, 5): 102,
		}),
		"GAZP": bars(map[time.Time]float64{
			day(2024, 1, 2): 200,
			day(2024, 1, 3): 202,
			day(2024, 1, 4): 198,
			day(2024, 1, 5): 200,
		}),
	}

	aligned := AlignSeries(series)
	require.Equal(t, []string{"GAZP", "SBER"}, aligned.Tickers)
	require.Len(t, aligned.Dates, 2) // Jan 4 and Jan 5 returns
	assert.Equal(t, day(2024, 1, 4), aligned.Dates[0])
	assert.Equal(t, day(2024, 1, 5), aligned.Dates[1])

	assert.InDelta(t, 0.04, aligned.Returns["SBER"][0], 1e-12)
	assert.InDelta(t, -2.0/104, aligned.Returns["SBER"][1], 1e-12)
	assert.InDelta(t, -2.0/200, aligned.Returns["GAZP"][0], 1e-12)
	assert.InDelta(t, 2.0/198, aligned.Returns["GAZP"][1], 1e-12)
}

func TestAlignSeries_InsufficientOverlap(t *testing.T) {
	series := map[string][]domain.OHLCVBar{
		"SBER": bars(map[time.Time]float64{day(2024, 1, 2): 100}),
		"GAZP": bars(map[time.Time]float64{day(2024, 1, 3): 200}),
	}
	aligned := AlignSeries(series)
	assert.Empty(t, aligned.Dates)
	assert.Empty(t, aligned.Returns["SBER"])
}

func TestPortfolioReturns_BuyAndHoldDrift(t *testing.T) {
	// A doubles on day one, B is flat: under buy and hold A's weight
	// drifts from 0.5 to 2/3 before day two.
	aligned := AlignedReturns{
		Tickers: []string{"AAAA", "BBBB"},
		Dates:   []time.Time{day(2024, 1, 3), day(2024, 1, 4)},
		Returns: map[string][]float64{
			"AAAA": {1.0, 0.0},
			"BBBB": {0.0, 0.0},
		},
	}
	weights := map[string]float64{"AAAA": 0.5, "BBBB": 0.5}

	series := PortfolioReturns(aligned, weights, RebalanceBuyAndHold)
	require.Len(t, series.Returns, 2)
	assert.InDelta(t, 0.5, series.Returns[0], 1e-12)
	assert.InDelta(t, 1.5, series.EquityCurve[0], 1e-12)
	assert.InDelta(t, 2.0/3.0, series.FinalWeights["AAAA"], 1e-12)
	assert.InDelta(t, 1.0/3.0, series.FinalWeights["BBBB"], 1e-12)
}

func TestPortfolioReturns_MonthlyResetBeforeAccrual(t *testing.T) {
	// The weight reset happens on the first trading day of February,
	// before that day's return accrues, so February's first return uses
	// the input weights again.
	aligned := AlignedReturns{
		Tickers: []string{"AAAA", "BBBB"},
		Dates:   []time.Time{day(2024, 1, 30), day(2024, 1, 31), day(2024, 2, 1)},
		Returns: map[string][]float64{
			"AAAA": {1.0, 0.0, 0.1},
			"BBBB": {0.0, 0.0, 0.0},
		},
	}
	weights := map[string]float64{"AAAA": 0.5, "BBBB": 0.5}

	drifted := PortfolioReturns(aligned, weights, RebalanceBuyAndHold)
	reset := PortfolioReturns(aligned, weights, RebalanceMonthly)

	// Buy and hold carries A at 2/3 into February: 2/3 · 0.1.
	assert.InDelta(t, 0.1*2.0/3.0, drifted.Returns[2], 1e-12)
	// Monthly resets to 0.5 first: 0.5 · 0.1.
	assert.InDelta(t, 0.05, reset.Returns[2], 1e-12)
}

func TestTotalReturn(t *testing.T) {
	assert.Zero(t, TotalReturn(nil))
	assert.InDelta(t, 0.21, TotalReturn([]float64{0.1, 0.1}), 1e-12)
	assert.InDelta(t, -0.19, TotalReturn([]float64{-0.1, -0.1}), 1e-12)
}
