// Package scenario holds the declarative plan templates: one per scenario
// type, each mapping a normalised request to an ordered step skeleton.
package scenario

import (
	"encoding/json"

	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/domain"
)

// Type names a scenario template.
type Type string

const (
	SingleSecurityOverview Type = "single_security_overview"
	CompareSecurities      Type = "compare_securities"
	IndexRiskScan          Type = "index_risk_scan"
	PortfolioRisk          Type = "portfolio_risk"
	PortfolioRiskDrillDown Type = "portfolio_risk_drill_down"
	CFOLiquidityReport     Type = "cfo_liquidity_report"
	IssuerPeersCompare     Type = "issuer_peers_compare"
)

// Request is the normalised user request the planner extracts from the
// raw message text. Templates read from it; they never see the raw text.
type Request struct {
	Query                string
	Tickers              []string
	Positions            []domain.Position
	FromDate             string // YYYY-MM-DD
	ToDate               string
	IndexTicker          string
	BaseCurrency         string
	TotalValue           float64
	ShortTermLiabilities float64
	MaxTurnover          float64
	MaxSingleWeight      float64
	Debug                bool
}

// Template maps a request to a plan skeleton.
type Template struct {
	Type  Type
	Build func(req Request) []plan.Step
}

// TemplateFor resolves a template by type.
func TemplateFor(t Type) (Template, bool) {
	tpl, ok := catalog[t]
	return tpl, ok
}

var catalog = map[Type]Template{
	SingleSecurityOverview: {Type: SingleSecurityOverview, Build: buildSingleSecurityOverview},
	CompareSecurities:      {Type: CompareSecurities, Build: buildCompareSecurities},
	IndexRiskScan:          {Type: IndexRiskScan, Build: buildIndexRiskScan},
	PortfolioRisk:          {Type: PortfolioRisk, Build: buildPortfolioRisk},
	PortfolioRiskDrillDown: {Type: PortfolioRiskDrillDown, Build: buildPortfolioRiskDrillDown},
	CFOLiquidityReport:     {Type: CFOLiquidityReport, Build: buildCFOLiquidityReport},
	IssuerPeersCompare:     {Type: IssuerPeersCompare, Build: buildIssuerPeersCompare},
}

// PositionsArg converts positions to the generic JSON shape tool schemas
// expect.
func PositionsArg(positions []domain.Position) []any {
	raw, _ := json.Marshal(positions)
	var out []any
	_ = json.Unmarshal(raw, &out)
	return out
}

func tickersArg(tickers []string) []any {
	out := make([]any, len(tickers))
	for i, t := range tickers {
		out[i] = t
	}
	return out
}

func portfolioTickers(positions []domain.Position) []string {
	tickers := make([]string, 0, len(positions))
	for _, p := range positions {
		tickers = append(tickers, p.Ticker)
	}
	return tickers
}

func explanationStep(id int, deps []int) plan.Step {
	return plan.Step{ID: id, Type: plan.StepExplanation, DependsOn: deps, Fatal: true}
}

func buildSingleSecurityOverview(req Request) []plan.Step {
	ticker := ""
	if len(req.Tickers) > 0 {
		ticker = req.Tickers[0]
	}
	return []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "get_security_snapshot",
			Args: map[string]any{"ticker": ticker}, Tickers: []string{ticker}},
		{ID: 2, Type: plan.StepMCPCall, Tool: "get_ohlcv_timeseries",
			Args:    map[string]any{"ticker": ticker, "from_date": req.FromDate, "to_date": req.ToDate, "interval": "1d"},
			Tickers: []string{ticker}},
		{ID: 3, Type: plan.StepMCPCall, Tool: "get_dividends",
			Args:    map[string]any{"ticker": ticker, "from_date": req.FromDate, "to_date": req.ToDate},
			Tickers: []string{ticker}},
		explanationStep(4, []int{1, 2, 3}),
	}
}

func buildCompareSecurities(req Request) []plan.Step {
	steps := make([]plan.Step, 0, len(req.Tickers)+2)
	deps := make([]int, 0, len(req.Tickers)+1)
	id := 1
	for _, ticker := range req.Tickers {
		steps = append(steps, plan.Step{
			ID: id, Type: plan.StepMCPCall, Tool: "get_security_snapshot",
			Args: map[string]any{"ticker": ticker}, Tickers: []string{ticker},
		})
		deps = append(deps, id)
		id++
	}
	steps = append(steps, plan.Step{
		ID: id, Type: plan.StepMCPCall, Tool: "compute_correlation_matrix",
		Args:    map[string]any{"tickers": tickersArg(req.Tickers), "from_date": req.FromDate, "to_date": req.ToDate},
		Tickers: req.Tickers,
	})
	deps = append(deps, id)
	steps = append(steps, explanationStep(id+1, deps))
	return steps
}

func buildIndexRiskScan(req Request) []plan.Step {
	return []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "get_index_constituents_metrics",
			Args: map[string]any{"index_ticker": req.IndexTicker}},
		explanationStep(2, []int{1}),
	}
}

func buildPortfolioRisk(req Request) []plan.Step {
	return []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "analyze_portfolio_risk",
			Args: map[string]any{
				"positions": PositionsArg(req.Positions),
				"from_date": req.FromDate,
				"to_date":   req.ToDate,
			},
			Tickers: portfolioTickers(req.Positions)},
		explanationStep(2, []int{1}),
	}
}

func buildPortfolioRiskDrillDown(req Request) []plan.Step {
	tickers := portfolioTickers(req.Positions)
	profile := map[string]any{}
	if req.MaxSingleWeight > 0 {
		profile["max_single_position_weight"] = req.MaxSingleWeight
	}
	if req.MaxTurnover > 0 {
		profile["max_turnover"] = req.MaxTurnover
	}

	steps := []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "analyze_portfolio_risk",
			Args: map[string]any{
				"positions": PositionsArg(req.Positions),
				"from_date": req.FromDate,
				"to_date":   req.ToDate,
			},
			Tickers: tickers},
	}
	deps := []int{1}
	if len(tickers) >= 2 {
		steps = append(steps, plan.Step{
			ID: 2, Type: plan.StepMCPCall, Tool: "compute_correlation_matrix",
			Args:    map[string]any{"tickers": tickersArg(tickers), "from_date": req.FromDate, "to_date": req.ToDate},
			Tickers: tickers,
		})
		deps = append(deps, 2)
	}
	if len(profile) > 0 {
		steps = append(steps, plan.Step{
			ID: 3, Type: plan.StepMCPCall, Tool: "suggest_rebalance",
			Args:    map[string]any{"positions": rebalanceArg(req.Positions), "risk_profile": profile},
			Tickers: tickers,
		})
		deps = append(deps, 3)
	}
	steps = append(steps, explanationStep(4, deps))
	return steps
}

func buildCFOLiquidityReport(req Request) []plan.Step {
	args := map[string]any{"positions": PositionsArg(req.Positions)}
	if req.TotalValue > 0 {
		args["total_portfolio_value"] = req.TotalValue
	}
	if req.ShortTermLiabilities > 0 {
		args["short_term_liabilities"] = req.ShortTermLiabilities
	}
	return []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "build_cfo_liquidity_report",
			Args: args, Tickers: portfolioTickers(req.Positions)},
		explanationStep(2, []int{1}),
	}
}

func buildIssuerPeersCompare(req Request) []plan.Step {
	steps := make([]plan.Step, 0, len(req.Tickers)+2)
	deps := make([]int, 0, len(req.Tickers)+1)
	id := 1
	for _, ticker := range req.Tickers {
		steps = append(steps, plan.Step{
			ID: id, Type: plan.StepMCPCall, Tool: "get_security_snapshot",
			Args: map[string]any{"ticker": ticker}, Tickers: []string{ticker},
		})
		deps = append(deps, id)
		id++
	}
	if len(req.Tickers) >= 2 {
		steps = append(steps, plan.Step{
			ID: id, Type: plan.StepMCPCall, Tool: "compute_correlation_matrix",
			Args:    map[string]any{"tickers": tickersArg(req.Tickers), "from_date": req.FromDate, "to_date": req.ToDate},
			Tickers: req.Tickers,
		})
		deps = append(deps, id)
		id++
	}
	steps = append(steps, explanationStep(id, deps))
	return steps
}

func rebalanceArg(positions []domain.Position) []any {
	out := make([]any, 0, len(positions))
	for _, p := range positions {
		entry := map[string]any{
			"ticker":         p.Ticker,
			"current_weight": p.Weight,
		}
		if p.AssetClass != "" {
			entry["asset_class"] = string(p.AssetClass)
		}
		if p.Issuer != "" {
			entry["issuer"] = p.Issuer
		}
		out = append(out, entry)
	}
	return out
}
