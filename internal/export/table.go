// Package export serializes in-memory tables to xlsx workbooks.
package export

import "sort"

// Row is one flat record keyed by column name.
type Row map[string]any

// Table is an ordered set of rows. Columns fixes the header order; when
// empty it is derived from the row keys in lexical order.
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

func (t Table) header() []string {
	if len(t.Columns) > 0 {
		return t.Columns
	}
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range t.Rows {
		for k := range row {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}
