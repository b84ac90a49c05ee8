package dashboard

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Build assembles a dashboard from the accumulated tool results. Results
// are inspected structurally: each known payload shape (risk analysis,
// rebalance, liquidity report, correlation matrix, bars, snapshot, index
// constituents) contributes its own cards, charts and tables. Every
// emitted data_ref points at a block installed in the same document.
func Build(scenarioType, baseCurrency, portfolioID string, results map[int]any, now time.Time) *Spec {
	spec := &Spec{
		Metadata: Metadata{
			AsOf:         now,
			ScenarioType: scenarioType,
			BaseCurrency: baseCurrency,
			PortfolioID:  portfolioID,
		},
		Data:       make(map[string]any),
		TimeSeries: make(map[string][]any),
	}

	stepIDs := make([]int, 0, len(results))
	for id := range results {
		stepIDs = append(stepIDs, id)
	}
	sort.Ints(stepIDs)

	for _, id := range stepIDs {
		payload, ok := toObject(results[id])
		if !ok {
			continue
		}
		switch {
		case hasKeys(payload, "totals", "concentrations"):
			addRiskAnalysis(spec, payload)
		case hasKeys(payload, "targets", "trades"):
			addRebalance(spec, payload)
		case hasKeys(payload, "buckets", "quick_ratio"):
			addLiquidity(spec, payload)
		case hasKeys(payload, "matrix", "tickers"):
			addCorrelation(spec, payload)
		case hasKeys(payload, "bars"):
			addPriceSeries(spec, payload)
		case hasKeys(payload, "constituents"):
			addConstituents(spec, payload)
		case hasKeys(payload, "last", "ticker"):
			addSnapshot(spec, payload)
		}
	}

	if len(spec.Data) == 0 {
		spec.Data = nil
	}
	if len(spec.TimeSeries) == 0 {
		spec.TimeSeries = nil
	}
	return spec
}

func toObject(v any) (map[string]any, bool) {
	if obj, ok := v.(map[string]any); ok {
		return obj, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func hasKeys(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}

func num(obj map[string]any, key string) float64 {
	v, _ := obj[key].(float64)
	return v
}

func addRiskAnalysis(spec *Spec, payload map[string]any) {
	totals, _ := toObject(payload["totals"])
	concentrations, _ := toObject(payload["concentrations"])

	varSeverity := SeverityInfo
	if len(anySlice(payload["flags"])) > 0 {
		varSeverity = SeverityWarning
	}
	spec.Metrics = append(spec.Metrics,
		Metric{ID: "total_return", Label: "Total return", Value: num(totals, "return") * 100, Unit: "%"},
		Metric{ID: "volatility", Label: "Annualised volatility", Value: num(totals, "volatility") * 100, Unit: "%"},
		Metric{ID: "max_drawdown", Label: "Max drawdown", Value: num(totals, "max_drawdown") * 100, Unit: "%"},
		Metric{ID: "var_light", Label: "VaR (95%)", Value: num(totals, "var") * 100, Unit: "%", Severity: varSeverity},
		Metric{ID: "hhi", Label: "Concentration (HHI)", Value: num(concentrations, "hhi")},
	)

	if rows := anySlice(payload["per_instrument"]); len(rows) > 0 {
		spec.Data["per_instrument"] = rows
		spec.Tables = append(spec.Tables, Table{
			ID:    "per_instrument",
			Title: "Per-instrument metrics",
			Columns: []Column{
				{ID: "ticker", Label: "Ticker"},
				{ID: "weight", Label: "Weight", Align: "right"},
				{ID: "total_return", Label: "Return", Align: "right"},
				{ID: "volatility", Label: "Volatility", Align: "right"},
				{ID: "max_drawdown", Label: "Max DD", Align: "right"},
			},
			DataRef: "per_instrument",
		})
		spec.Charts = append(spec.Charts, Chart{
			ID:    "weights",
			Type:  "pie",
			Title: "Portfolio weights",
			Series: []Series{
				{ID: "weights", DataRef: "per_instrument", XField: "ticker", YField: "weight"},
			},
		})
	}

	if rows := anySlice(payload["stress_scenarios"]); len(rows) > 0 {
		spec.Data["stress_scenarios"] = rows
		spec.Tables = append(spec.Tables, Table{
			ID:    "stress",
			Title: "Stress scenarios",
			Columns: []Column{
				{ID: "name", Label: "Scenario"},
				{ID: "pnl_pct", Label: "P&L %", Align: "right"},
				{ID: "pnl_value", Label: "P&L", Align: "right"},
			},
			DataRef: "stress_scenarios",
		})
		spec.Charts = append(spec.Charts, Chart{
			ID:    "stress_pnl",
			Type:  "bar",
			Title: "Stress P&L",
			Series: []Series{
				{ID: "pnl", DataRef: "stress_scenarios", XField: "name", YField: "pnl_pct"},
			},
		})
	}

	for _, flag := range anySlice(payload["flags"]) {
		if msg, ok := flag.(string); ok {
			spec.Alerts = append(spec.Alerts, Alert{Severity: SeverityWarning, Message: msg})
		}
	}
}

func addRebalance(spec *Spec, payload map[string]any) {
	summary, _ := toObject(payload["summary"])
	spec.Metrics = append(spec.Metrics,
		Metric{ID: "turnover", Label: "Total turnover", Value: num(summary, "total_turnover") * 100, Unit: "%"},
		Metric{ID: "resolved", Label: "Concentration issues resolved", Value: num(summary, "concentration_issues_resolved")},
	)

	if rows := anySlice(payload["trades"]); len(rows) > 0 {
		spec.Data["trades"] = rows
		spec.Tables = append(spec.Tables, Table{
			ID:    "trades",
			Title: "Suggested trades",
			Columns: []Column{
				{ID: "ticker", Label: "Ticker"},
				{ID: "side", Label: "Side"},
				{ID: "weight_delta", Label: "Δ weight", Align: "right"},
				{ID: "estimated_value", Label: "Est. value", Align: "right"},
			},
			DataRef: "trades",
		})
	}

	for _, warning := range anySlice(summary["warnings"]) {
		if msg, ok := warning.(string); ok {
			spec.Alerts = append(spec.Alerts, Alert{Severity: SeverityWarning, Message: msg, RelatedIDs: []string{"trades"}})
		}
	}
}

func addLiquidity(spec *Spec, payload map[string]any) {
	spec.Metrics = append(spec.Metrics,
		Metric{ID: "quick_ratio", Label: "Quick ratio", Value: num(payload, "quick_ratio"), Severity: ratioSeverity(num(payload, "quick_ratio"))},
		Metric{ID: "short_term_ratio", Label: "Short-term ratio", Value: num(payload, "short_term_ratio")},
	)

	if rows := anySlice(payload["buckets"]); len(rows) > 0 {
		spec.Data["liquidity_buckets"] = rows
		spec.Charts = append(spec.Charts, Chart{
			ID:    "liquidity",
			Type:  "bar",
			Title: "Liquidity buckets",
			Series: []Series{
				{ID: "buckets", DataRef: "liquidity_buckets", XField: "bucket", YField: "weight"},
			},
		})
	}
	// A run can carry both a risk analysis and a liquidity report, so the
	// liquidity stress projection gets its own block and table id.
	if rows := anySlice(payload["stress_scenarios"]); len(rows) > 0 {
		spec.Data["liquidity_stress"] = rows
		spec.Tables = append(spec.Tables, Table{
			ID:    "liquidity_stress",
			Title: "Stress scenarios",
			Columns: []Column{
				{ID: "name", Label: "Scenario"},
				{ID: "pnl_pct", Label: "P&L %", Align: "right"},
			},
			DataRef: "liquidity_stress",
		})
	}

	for _, rec := range anySlice(payload["recommendations"]) {
		if msg, ok := rec.(string); ok {
			spec.Alerts = append(spec.Alerts, Alert{Severity: SeverityInfo, Message: msg})
		}
	}
}

func ratioSeverity(ratio float64) Severity {
	if ratio < 1 {
		return SeverityWarning
	}
	return SeverityInfo
}

func addCorrelation(spec *Spec, payload map[string]any) {
	tickers := anySlice(payload["tickers"])
	matrix := anySlice(payload["matrix"])
	if len(tickers) == 0 || len(matrix) == 0 {
		return
	}

	rows := make([]any, 0, len(matrix))
	for i, rawRow := range matrix {
		cells, _ := rawRow.([]any)
		row := map[string]any{"ticker": tickers[i]}
		for j, cell := range cells {
			if j < len(tickers) {
				row[fmt.Sprint(tickers[j])] = cell
			}
		}
		rows = append(rows, row)
	}
	spec.Data["correlation"] = rows

	columns := []Column{{ID: "ticker", Label: "Ticker"}}
	for _, t := range tickers {
		name := fmt.Sprint(t)
		columns = append(columns, Column{ID: name, Label: name, Align: "right"})
	}
	spec.Tables = append(spec.Tables, Table{
		ID:      "correlation",
		Title:   "Correlation matrix",
		Columns: columns,
		DataRef: "correlation",
	})
}

func addPriceSeries(spec *Spec, payload map[string]any) {
	bars := anySlice(payload["bars"])
	if len(bars) == 0 {
		return
	}
	name := fmt.Sprintf("prices_%v", payload["ticker"])
	spec.TimeSeries[name] = bars
	spec.Charts = append(spec.Charts, Chart{
		ID:    name,
		Type:  "line",
		Title: fmt.Sprintf("%v close", payload["ticker"]),
		Series: []Series{
			{ID: "close", DataRef: name, XField: "date", YField: "close"},
		},
	})
}

func addConstituents(spec *Spec, payload map[string]any) {
	rows := anySlice(payload["constituents"])
	if len(rows) == 0 {
		return
	}
	spec.Data["constituents"] = rows
	spec.Tables = append(spec.Tables, Table{
		ID:    "constituents",
		Title: fmt.Sprintf("%v constituents", payload["index_ticker"]),
		Columns: []Column{
			{ID: "ticker", Label: "Ticker"},
			{ID: "short_name", Label: "Name"},
			{ID: "weight", Label: "Weight", Align: "right"},
		},
		DataRef: "constituents",
	})
	spec.Charts = append(spec.Charts, Chart{
		ID:    "index_weights",
		Type:  "pie",
		Title: "Index weights",
		Series: []Series{
			{ID: "weights", DataRef: "constituents", XField: "ticker", YField: "weight"},
		},
	})

	if metrics, ok := toObject(payload["metrics"]); ok {
		spec.Metrics = append(spec.Metrics,
			Metric{ID: "index_top1", Label: "Top-1 weight", Value: num(metrics, "top1_pct"), Unit: "%"},
			Metric{ID: "index_hhi", Label: "Index HHI", Value: num(metrics, "hhi")},
		)
	}
}

func addSnapshot(spec *Spec, payload map[string]any) {
	last := num(payload, "last")
	prev := num(payload, "prev_close")
	change := 0.0
	if prev > 0 {
		change = (last - prev) / prev * 100
	}
	spec.Metrics = append(spec.Metrics, Metric{
		ID:     fmt.Sprintf("last_%v", payload["ticker"]),
		Label:  fmt.Sprintf("%v last price", payload["ticker"]),
		Value:  last,
		Change: change,
	})
}

func anySlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var s []any
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return s
}
