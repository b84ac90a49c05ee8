package risk

import (
	"sort"
	"time"

	"github.com/mosfin/analyst/internal/domain"
)

// AlignedReturns holds per-ticker simple daily returns on the common
// trading-day grid. Dates index the return observations: Returns[ticker][i]
// is the return realised on Dates[i].
type AlignedReturns struct {
	Tickers []string
	Dates   []time.Time
	Returns map[string][]float64
}

// AlignSeries intersects the trading days of the given close series and
// computes simple daily returns r_t = (C_t − C_{t−1}) / C_{t−1} on the
// shared grid. Tickers are processed in sorted order so the arithmetic
// order, and therefore the IEEE-754 result, is reproducible.
func AlignSeries(series map[string][]domain.OHLCVBar) AlignedReturns {
	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	closeByDate := make(map[string]map[time.Time]float64, len(tickers))
	for _, ticker := range tickers {
		closes := make(map[time.Time]float64, len(series[ticker]))
		for _, bar := range series[ticker] {
			closes[dateOnly(bar.Date)] = bar.Close
		}
		closeByDate[ticker] = closes
	}

	// Intersection of trading days, from the first ticker's calendar.
	var shared []time.Time
	if len(tickers) > 0 {
		for date := range closeByDate[tickers[0]] {
			present := true
			for _, other := range tickers[1:] {
				if _, ok := closeByDate[other][date]; !ok {
					present = false
					break
				}
			}
			if present {
				shared = append(shared, date)
			}
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].Before(shared[j]) })

	aligned := AlignedReturns{Tickers: tickers, Returns: make(map[string][]float64, len(tickers))}
	if len(shared) < 2 {
		return aligned
	}
	aligned.Dates = shared[1:]

	for _, ticker := range tickers {
		returns := make([]float64, 0, len(shared)-1)
		for i := 1; i < len(shared); i++ {
			prev := closeByDate[ticker][shared[i-1]]
			curr := closeByDate[ticker][shared[i]]
			if prev == 0 {
				returns = append(returns, 0)
				continue
			}
			returns = append(returns, (curr-prev)/prev)
		}
		aligned.Returns[ticker] = returns
	}
	return aligned
}

// PortfolioSeries is the result of evolving the portfolio over the
// aligned grid: daily portfolio returns, the equity curve and the final
// drifted weights per ticker.
type PortfolioSeries struct {
	Returns      []float64
	EquityCurve  []float64
	FinalWeights map[string]float64
}

// PortfolioReturns computes daily portfolio returns R_t = Σ w_i·r_{i,t}.
// Under buy_and_hold the weights drift with performance,
// w_{i,t} = w_{i,t−1}·(1+r_{i,t}) / (1+R_t). Under monthly rebalancing
// the weights reset to the input weights on the first trading day of each
// month, before that day's return accrues.
func PortfolioReturns(aligned AlignedReturns, inputWeights map[string]float64, mode RebalanceMode) PortfolioSeries {
	n := len(aligned.Dates)
	result := PortfolioSeries{
		Returns:      make([]float64, 0, n),
		EquityCurve:  make([]float64, 0, n),
		FinalWeights: make(map[string]float64, len(aligned.Tickers)),
	}

	weights := make(map[string]float64, len(inputWeights))
	for k, v := range inputWeights {
		weights[k] = v
	}

	equity := 1.0
	for t := 0; t < n; t++ {
		if mode == RebalanceMonthly && t > 0 && aligned.Dates[t].Month() != aligned.Dates[t-1].Month() {
			for k, v := range inputWeights {
				weights[k] = v
			}
		}

		dayReturn := 0.0
		for _, ticker := range aligned.Tickers {
			dayReturn += weights[ticker] * aligned.Returns[ticker][t]
		}

		if 1+dayReturn != 0 {
			for _, ticker := range aligned.Tickers {
				weights[ticker] = weights[ticker] * (1 + aligned.Returns[ticker][t]) / (1 + dayReturn)
			}
		}

		equity *= 1 + dayReturn
		result.Returns = append(result.Returns, dayReturn)
		result.EquityCurve = append(result.EquityCurve, equity)
	}

	for k, v := range weights {
		result.FinalWeights[k] = v
	}
	return result
}

// TotalReturn is Π(1+R_t) − 1 over the series.
func TotalReturn(returns []float64) float64 {
	total := 1.0
	for _, r := range returns {
		total *= 1 + r
	}
	return total - 1
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
