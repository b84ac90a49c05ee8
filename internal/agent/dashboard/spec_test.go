package dashboard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSpec() *Spec {
	return &Spec{
		Metadata: Metadata{
			AsOf:         time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			ScenarioType: "portfolio_risk",
			BaseCurrency: "RUB",
		},
		Metrics: []Metric{
			{ID: "var_light", Label: "VaR (95%)", Value: 2.1, Unit: "%", Severity: SeverityInfo},
		},
		Charts: []Chart{
			{ID: "prices", Type: "line", Series: []Series{
				{ID: "close", DataRef: "prices_SBER", XField: "date", YField: "close"},
			}},
		},
		Tables: []Table{
			{ID: "per_instrument", Columns: []Column{{ID: "ticker", Label: "Ticker"}}, DataRef: "per_instrument"},
		},
		Data: map[string]any{
			"per_instrument": []any{map[string]any{"ticker": "SBER"}},
			"nested":         map[string]any{"summary": map[string]any{"hhi": 0.25}},
		},
		TimeSeries: map[string][]any{
			"prices_SBER": {map[string]any{"date": "2024-01-09", "close": 285.5}},
		},
	}
}

func TestResolveRef(t *testing.T) {
	spec := sampleSpec()

	rows, err := spec.ResolveRef("per_instrument")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	series, err := spec.ResolveRef("prices_SBER")
	require.NoError(t, err)
	assert.Len(t, series, 1)

	value, err := spec.ResolveRef("nested.summary.hhi")
	require.NoError(t, err)
	assert.Equal(t, 0.25, value)
}

func TestResolveRef_Errors(t *testing.T) {
	spec := sampleSpec()

	_, err := spec.ResolveRef("")
	assert.Error(t, err)

	_, err = spec.ResolveRef("missing_block")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in data or time_series")

	_, err = spec.ResolveRef("nested.summary.missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing" not found`)

	_, err = spec.ResolveRef("per_instrument.ticker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not an object")
}

func TestVerifyRefs(t *testing.T) {
	spec := sampleSpec()
	assert.Empty(t, spec.VerifyRefs())

	spec.Charts[0].Series[0].DataRef = "gone"
	spec.Tables[0].DataRef = "also_gone"
	errs := spec.VerifyRefs()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "chart prices")
	assert.Contains(t, errs[1].Error(), "table per_instrument")
}

func TestValidate_ValidSpec(t *testing.T) {
	assert.Empty(t, Validate(sampleSpec()))
}

func TestValidate_SchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"missing scenario type", func(s *Spec) { s.Metadata.ScenarioType = "" }},
		{"bad chart type", func(s *Spec) { s.Charts[0].Type = "scatter" }},
		{"chart without series", func(s *Spec) { s.Charts[0].Series = nil }},
		{"bad severity", func(s *Spec) { s.Metrics[0].Severity = "fatal" }},
		{"bad column align", func(s *Spec) { s.Tables[0].Columns[0].Align = "middle" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := sampleSpec()
			tt.mutate(spec)
			assert.NotEmpty(t, Validate(spec))
		})
	}
}

func TestValidate_UnresolvedRefIsAProblem(t *testing.T) {
	spec := sampleSpec()
	spec.Tables[0].DataRef = "nowhere"
	problems := Validate(spec)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "nowhere")
}

func TestSpec_JSONRoundTrip(t *testing.T) {
	spec := sampleSpec()

	raw, err := json.Marshal(spec)
	require.NoError(t, err)

	var decoded Spec
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, spec.Metadata, decoded.Metadata)
	assert.Equal(t, spec.Metrics, decoded.Metrics)
	assert.Equal(t, spec.Charts, decoded.Charts)
	assert.Equal(t, spec.Tables, decoded.Tables)

	// A decoded document still validates and resolves its refs.
	assert.Empty(t, Validate(&decoded))
}
