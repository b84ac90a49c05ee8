// Package formatter assembles the final response: an LLM-written
// narrative constrained to the tool results, deterministic table
// projections, the validated dashboard document and an optional debug
// block.
package formatter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/agent/dashboard"
	"github.com/mosfin/analyst/internal/agent/llm"
	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/session"
)

// Table is one deterministic tabular projection of a tool result.
type Table struct {
	Title   string   `json:"title"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Debug carries the plan, execution summary and error log. It is present
// when the request asked for it or when the run failed.
type Debug struct {
	Plan            *plan.Plan            `json:"plan,omitempty"`
	ExecutionResult *plan.ExecutionResult `json:"execution_result,omitempty"`
	ErrorLog        []string              `json:"error_log,omitempty"`
	ElapsedMS       int64                 `json:"elapsed_ms"`
}

// Output is the agent's final answer.
type Output struct {
	Text         string          `json:"text"`
	Tables       []Table         `json:"tables,omitempty"`
	Dashboard    *dashboard.Spec `json:"dashboard,omitempty"`
	SchemaValid  bool            `json:"schema_valid"`
	SchemaErrors []string        `json:"schema_errors,omitempty"`
	Debug        *Debug          `json:"debug,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Formatter builds outputs. The LLM is optional: without it (or when it
// fails) the narrative degrades to a deterministic summary.
type Formatter struct {
	llm *llm.Client
	log zerolog.Logger
}

// New builds a formatter. llmClient may be nil.
func New(llmClient *llm.Client, log zerolog.Logger) *Formatter {
	return &Formatter{llm: llmClient, log: log.With().Str("component", "formatter").Logger()}
}

const narrativeSystemPrompt = `You are a financial analyst assistant for the Moscow Exchange.
Write a concise narrative answering the user's question using ONLY the numbers present in the
labelled tool results below. Never invent figures. Mention the analysis window when present.
Answer in the user's language.`

// Format assembles the output from the session's accumulated state.
func (f *Formatter) Format(ctx context.Context, sess *session.Context, p *plan.Plan, result *plan.ExecutionResult) *Output {
	results := sess.Results()
	out := &Output{
		Tables:    buildTables(results),
		Dashboard: dashboard.Build(p.ScenarioType, "RUB", sess.ID, results, time.Now()),
	}

	problems := dashboard.Validate(out.Dashboard)
	out.SchemaValid = len(problems) == 0
	out.SchemaErrors = problems
	if !out.SchemaValid {
		f.log.Warn().Strs("problems", problems).Msg("Dashboard failed validation, dropping from output")
		out.Dashboard = nil
	}

	out.Text = f.narrative(ctx, sess, p, results)

	if sess.Debug || result.HasErrors() {
		out.Debug = &Debug{
			Plan:            p,
			ExecutionResult: result,
			ErrorLog:        sess.ErrorLog(),
			ElapsedMS:       sess.Elapsed().Milliseconds(),
		}
	}
	return out
}

// narrative asks the LLM for the final text; on any failure it falls back
// to the deterministic summary so the run still completes.
func (f *Formatter) narrative(ctx context.Context, sess *session.Context, p *plan.Plan, results map[int]any) string {
	fallback := deterministicText(p.ScenarioType, results)
	if f.llm == nil {
		return fallback
	}

	prompt, err := narrativePrompt(sess.LastUserMessage(), p.ScenarioType, results)
	if err != nil {
		return fallback
	}
	text, err := f.llm.Complete(ctx, narrativeSystemPrompt, prompt)
	if err != nil {
		f.log.Warn().Err(err).Msg("Narrative generation failed, using deterministic summary")
		return fallback
	}
	return strings.TrimSpace(text)
}

func narrativePrompt(question, scenarioType string, results map[int]any) (string, error) {
	labelled := make(map[string]any, len(results))
	for id, data := range results {
		labelled[fmt.Sprintf("step_%d", id)] = data
	}
	raw, err := json.MarshalIndent(labelled, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Question: %s\nScenario: %s\nTool results:\n%s", question, scenarioType, raw), nil
}

// deterministicText is the LLM-free narrative: one line per headline
// number found in the results.
func deterministicText(scenarioType string, results map[int]any) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Analysis complete (%s).", scenarioType))

	ids := sortedIDs(results)
	for _, id := range ids {
		obj, ok := toObject(results[id])
		if !ok {
			continue
		}
		if totals, ok := toObject(obj["totals"]); ok {
			lines = append(lines, fmt.Sprintf(
				"Portfolio: return %.2f%%, volatility %.2f%%, max drawdown %.2f%%, VaR(95%%) %.2f%%.",
				num(totals, "return")*100, num(totals, "volatility")*100,
				num(totals, "max_drawdown")*100, num(totals, "var")*100))
		}
		if summary, ok := toObject(obj["summary"]); ok {
			lines = append(lines, fmt.Sprintf(
				"Rebalance: turnover %.2f%%, %d concentration issue(s) resolved.",
				num(summary, "total_turnover")*100, int(num(summary, "concentration_issues_resolved"))))
		}
		if _, ok := obj["quick_ratio"]; ok {
			lines = append(lines, fmt.Sprintf(
				"Liquidity: quick ratio %.2f, short-term ratio %.2f.",
				num(obj, "quick_ratio"), num(obj, "short_term_ratio")))
		}
		if last, ok := obj["last"].(float64); ok {
			lines = append(lines, fmt.Sprintf("%v last price: %.2f.", obj["ticker"], last))
		}
	}
	return strings.Join(lines, " ")
}

// buildTables projects known result shapes into plain tables.
func buildTables(results map[int]any) []Table {
	var tables []Table
	for _, id := range sortedIDs(results) {
		obj, ok := toObject(results[id])
		if !ok {
			continue
		}
		if rows := anySlice(obj["per_instrument"]); len(rows) > 0 {
			tables = append(tables, projectTable("Positions", rows,
				[]string{"ticker", "weight", "total_return", "volatility", "max_drawdown"}))
		}
		if rows := anySlice(obj["stress_scenarios"]); len(rows) > 0 {
			tables = append(tables, projectTable("Stress scenarios", rows,
				[]string{"name", "pnl_pct", "pnl_value"}))
		}
		if rows := anySlice(obj["trades"]); len(rows) > 0 {
			tables = append(tables, projectTable("Trades", rows,
				[]string{"ticker", "side", "weight_delta", "estimated_value"}))
		}
		if rows := anySlice(obj["buckets"]); len(rows) > 0 {
			tables = append(tables, projectTable("Liquidity buckets", rows,
				[]string{"bucket", "weight", "value"}))
		}
	}
	return tables
}

func projectTable(title string, rows []any, columns []string) Table {
	table := Table{Title: title, Columns: columns}
	for _, raw := range rows {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = obj[col]
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func sortedIDs(results map[int]any) []int {
	ids := make([]int, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func toObject(v any) (map[string]any, bool) {
	if obj, ok := v.(map[string]any); ok {
		return obj, true
	}
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
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

func num(obj map[string]any, key string) float64 {
	v, _ := obj[key].(float64)
	return v
}
