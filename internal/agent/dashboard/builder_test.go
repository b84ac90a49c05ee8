package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var buildNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func metricByID(t *testing.T, spec *Spec, id string) Metric {
	t.Helper()
	for _, m := range spec.Metrics {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("metric %q not found", id)
	return Metric{}
}

func TestBuild_RiskAnalysis(t *testing.T) {
	results := map[int]any{
		1: map[string]any{
			"totals": map[string]any{
				"return": 0.12, "volatility": 0.25, "max_drawdown": -0.18, "var": 0.021, "es": 0.03,
			},
			"concentrations": map[string]any{"hhi": 0.52, "top1_pct": 60.0},
			"per_instrument": []any{
				map[string]any{"ticker": "SBER", "weight": 0.6},
				map[string]any{"ticker": "GAZP", "weight": 0.4},
			},
			"stress_scenarios": []any{
				map[string]any{"name": "base_case", "pnl_pct": 0.0},
			},
			"flags": []any{"top1 concentration 60.0% exceeds 50.0%"},
		},
	}

	spec := Build("portfolio_risk", "RUB", "", results, buildNow)

	assert.Equal(t, "portfolio_risk", spec.Metadata.ScenarioType)
	assert.Equal(t, buildNow, spec.Metadata.AsOf)

	assert.InDelta(t, 12.0, metricByID(t, spec, "total_return").Value, 1e-9)
	assert.InDelta(t, 2.1, metricByID(t, spec, "var_light").Value, 1e-9)
	assert.Equal(t, SeverityWarning, metricByID(t, spec, "var_light").Severity)
	assert.InDelta(t, 0.52, metricByID(t, spec, "hhi").Value, 1e-9)

	require.Len(t, spec.Alerts, 1)
	assert.Equal(t, SeverityWarning, spec.Alerts[0].Severity)

	// Every data_ref resolves within the same document and the whole
	// thing validates.
	assert.Empty(t, Validate(spec))
}

func TestBuild_RebalanceAndCorrelation(t *testing.T) {
	results := map[int]any{
		2: map[string]any{
			"tickers": []any{"SBER", "GAZP"},
			"matrix":  []any{[]any{1.0, 0.45}, []any{0.45, 1.0}},
			"days":    120,
		},
		3: map[string]any{
			"targets": map[string]any{"SBER": 0.25, "GAZP": 0.75},
			"trades": []any{
				map[string]any{"ticker": "SBER", "side": "sell", "weight_delta": -0.2},
			},
			"summary": map[string]any{
				"total_turnover":                0.2,
				"concentration_issues_resolved": 1.0,
				"warnings":                      []any{"residual breach"},
			},
		},
	}

	spec := Build("portfolio_risk_drill_down", "RUB", "", results, buildNow)

	assert.InDelta(t, 20.0, metricByID(t, spec, "turnover").Value, 1e-9)
	assert.InDelta(t, 1.0, metricByID(t, spec, "resolved").Value, 1e-9)

	var tableIDs []string
	for _, table := range spec.Tables {
		tableIDs = append(tableIDs, table.ID)
	}
	assert.Contains(t, tableIDs, "correlation")
	assert.Contains(t, tableIDs, "trades")

	// The correlation table reshapes matrix rows into keyed objects.
	rows, err := spec.ResolveRef("correlation")
	require.NoError(t, err)
	first := rows.([]any)[0].(map[string]any)
	assert.Equal(t, "SBER", first["ticker"])
	assert.Equal(t, 0.45, first["GAZP"])

	require.Len(t, spec.Alerts, 1)
	assert.Equal(t, []string{"trades"}, spec.Alerts[0].RelatedIDs)

	assert.Empty(t, Validate(spec))
}

func TestBuild_LiquidityReport(t *testing.T) {
	results := map[int]any{
		1: map[string]any{
			"quick_ratio":      0.8,
			"short_term_ratio": 1.6,
			"buckets": []any{
				map[string]any{"bucket": "0-7d", "weight": 0.3},
				map[string]any{"bucket": "90d+", "weight": 0.7},
			},
			"stress_scenarios": []any{
				map[string]any{"name": "rates_+300bp", "pnl_pct": -0.06},
			},
			"recommendations": []any{"quick ratio 0.80 is below 1.0: increase 0-7d liquid holdings"},
		},
	}

	spec := Build("cfo_liquidity_report", "RUB", "treasury-1", results, buildNow)

	assert.Equal(t, "treasury-1", spec.Metadata.PortfolioID)
	quick := metricByID(t, spec, "quick_ratio")
	assert.Equal(t, SeverityWarning, quick.Severity, "quick ratio below 1 warns")

	require.Len(t, spec.Alerts, 1)
	assert.Equal(t, SeverityInfo, spec.Alerts[0].Severity)
	assert.Empty(t, Validate(spec))
}

func TestBuild_PriceSeriesAndSnapshot(t *testing.T) {
	results := map[int]any{
		1: map[string]any{
			"ticker": "SBER", "board": "TQBR", "last": 285.5, "prev_close": 280.0,
		},
		2: map[string]any{
			"ticker": "SBER",
			"bars": []any{
				map[string]any{"date": "2024-01-09", "close": 284.0},
				map[string]any{"date": "2024-01-10", "close": 285.5},
			},
		},
	}

	spec := Build("single_security_overview", "RUB", "", results, buildNow)

	last := metricByID(t, spec, "last_SBER")
	assert.InDelta(t, 285.5, last.Value, 1e-9)
	assert.InDelta(t, (285.5-280.0)/280.0*100, last.Change, 1e-9)

	require.Contains(t, spec.TimeSeries, "prices_SBER")
	require.Len(t, spec.Charts, 1)
	assert.Equal(t, "line", spec.Charts[0].Type)
	assert.Empty(t, Validate(spec))
}

func TestBuild_Constituents(t *testing.T) {
	results := map[int]any{
		1: map[string]any{
			"index_ticker": "IMOEX",
			"constituents": []any{
				map[string]any{"ticker": "SBER", "short_name": "Сбербанк", "weight": 0.15},
				map[string]any{"ticker": "LKOH", "short_name": "Лукойл", "weight": 0.12},
			},
			"metrics": map[string]any{"top1_pct": 15.0, "hhi": 0.05},
		},
	}

	spec := Build("index_risk_scan", "RUB", "", results, buildNow)

	assert.InDelta(t, 15.0, metricByID(t, spec, "index_top1").Value, 1e-9)
	require.Len(t, spec.Tables, 1)
	require.Len(t, spec.Charts, 1)
	assert.Equal(t, "pie", spec.Charts[0].Type)
	assert.Empty(t, Validate(spec))
}

func TestBuild_RiskAndLiquidityStressTablesDoNotCollide(t *testing.T) {
	results := map[int]any{
		1: map[string]any{
			"totals":         map[string]any{"return": 0.1, "volatility": 0.2, "max_drawdown": -0.1, "var": 0.02, "es": 0.03},
			"concentrations": map[string]any{"hhi": 0.3},
			"stress_scenarios": []any{
				map[string]any{"name": "base_case", "pnl_pct": 0.0},
				map[string]any{"name": "rates_+300bp", "pnl_pct": -0.06},
			},
		},
		2: map[string]any{
			"quick_ratio":      1.2,
			"short_term_ratio": 2.0,
			"buckets": []any{
				map[string]any{"bucket": "0-7d", "weight": 1.0},
			},
			"stress_scenarios": []any{
				map[string]any{"name": "base_case", "pnl_pct": 0.0},
			},
		},
	}

	spec := Build("cfo_liquidity_report", "RUB", "", results, buildNow)

	ids := make(map[string]int)
	for _, table := range spec.Tables {
		ids[table.ID]++
	}
	assert.Equal(t, 1, ids["stress"])
	assert.Equal(t, 1, ids["liquidity_stress"])

	riskRows, err := spec.ResolveRef("stress_scenarios")
	require.NoError(t, err)
	assert.Len(t, riskRows, 2)

	liqRows, err := spec.ResolveRef("liquidity_stress")
	require.NoError(t, err)
	assert.Len(t, liqRows, 1)

	assert.Empty(t, Validate(spec))
}

func TestBuild_UnknownShapesAreIgnored(t *testing.T) {
	results := map[int]any{
		1: map[string]any{"kept": 3, "dropped": 2, "others_weight": 0.2},
		2: "not an object",
		3: nil,
	}

	spec := Build("portfolio_risk", "RUB", "", results, buildNow)

	assert.Empty(t, spec.Metrics)
	assert.Nil(t, spec.Data)
	assert.Nil(t, spec.TimeSeries)
	assert.Empty(t, Validate(spec))
}
