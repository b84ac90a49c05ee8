// Package dashboard builds and validates the RiskDashboardSpec document
// the UI renders: metric cards, charts, tables and alerts referencing
// named data blocks through dotted data_ref paths.
package dashboard

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades a metric or alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Metadata describes the dashboard document.
type Metadata struct {
	AsOf         time.Time `json:"as_of"`
	ScenarioType string    `json:"scenario_type"`
	BaseCurrency string    `json:"base_currency,omitempty"`
	PortfolioID  string    `json:"portfolio_id,omitempty"`
}

// Metric is one headline number card.
type Metric struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Value    float64  `json:"value"`
	Unit     string   `json:"unit,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	Change   float64  `json:"change,omitempty"`
}

// Series is one chart series bound to data through a data_ref.
type Series struct {
	ID      string `json:"id"`
	Label   string `json:"label,omitempty"`
	DataRef string `json:"data_ref"`
	XField  string `json:"x_field,omitempty"`
	YField  string `json:"y_field,omitempty"`
}

// Chart is one visualisation.
type Chart struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"` // line | bar | pie
	Title  string   `json:"title,omitempty"`
	XLabel string   `json:"x_label,omitempty"`
	YLabel string   `json:"y_label,omitempty"`
	Series []Series `json:"series"`
}

// Column describes one table column.
type Column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Align string `json:"align,omitempty"` // left | right | center
}

// Table is one tabular projection bound through a data_ref.
type Table struct {
	ID      string   `json:"id"`
	Title   string   `json:"title,omitempty"`
	Columns []Column `json:"columns"`
	DataRef string   `json:"data_ref"`
}

// Alert is one severity-graded message.
type Alert struct {
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	RelatedIDs []string `json:"related_ids,omitempty"`
}

// Spec is the full dashboard document.
type Spec struct {
	Metadata   Metadata         `json:"metadata"`
	Metrics    []Metric         `json:"metrics,omitempty"`
	Charts     []Chart          `json:"charts,omitempty"`
	Tables     []Table          `json:"tables,omitempty"`
	Alerts     []Alert          `json:"alerts,omitempty"`
	Data       map[string]any   `json:"data,omitempty"`
	TimeSeries map[string][]any `json:"time_series,omitempty"`
}

// ResolveRef resolves a dotted data_ref against the document's data and
// time_series blocks. The first path segment selects the named block.
func (s *Spec) ResolveRef(ref string) (any, error) {
	parts := strings.Split(ref, ".")
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("empty data_ref")
	}

	var node any
	if rows, ok := s.TimeSeries[parts[0]]; ok {
		node = rows
	} else if block, ok := s.Data[parts[0]]; ok {
		node = block
	} else {
		return nil, fmt.Errorf("data_ref %q: block %q not found in data or time_series", ref, parts[0])
	}

	for _, key := range parts[1:] {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("data_ref %q: segment %q is not an object", ref, key)
		}
		node, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("data_ref %q: segment %q not found", ref, key)
		}
	}
	return node, nil
}

// VerifyRefs checks that every data_ref in charts and tables resolves.
func (s *Spec) VerifyRefs() []error {
	var errs []error
	for _, chart := range s.Charts {
		for _, series := range chart.Series {
			if _, err := s.ResolveRef(series.DataRef); err != nil {
				errs = append(errs, fmt.Errorf("chart %s: %w", chart.ID, err))
			}
		}
	}
	for _, table := range s.Tables {
		if _, err := s.ResolveRef(table.DataRef); err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", table.ID, err))
		}
	}
	return errs
}
