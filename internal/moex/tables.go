package moex

import "strings"

// issResponse is the ISS "table" wire shape: a map of named blocks, each
// carrying a column list and row data.
type issResponse map[string]issTable

type issTable struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

func (r issResponse) table(name string) issTable {
	return r[name]
}

func (t issTable) empty() bool {
	return len(t.Data) == 0
}

func (t issTable) len() int {
	return len(t.Data)
}

func (t issTable) row(i int) (issRow, bool) {
	if i < 0 || i >= len(t.Data) {
		return issRow{}, false
	}
	return issRow{columns: t.Columns, values: t.Data[i]}, true
}

// issRow provides case-insensitive column access over one data row.
type issRow struct {
	columns []string
	values  []any
}

func (r issRow) value(column string) any {
	for i, c := range r.columns {
		if strings.EqualFold(c, column) && i < len(r.values) {
			return r.values[i]
		}
	}
	return nil
}

func (r issRow) str(column string) string {
	if s, ok := r.value(column).(string); ok {
		return s
	}
	return ""
}

func (r issRow) num(column string) float64 {
	if f, ok := r.value(column).(float64); ok {
		return f
	}
	return 0
}
