// Package models defines the records that flow through the enrollment pipeline.
package models

// Row maps a source column name to its raw cell: string, number or nil.
type Row map[string]any

// Grid is a parsed source table: ordered column names and rows.
type Grid struct {
	Columns []string
	Rows    []Row
}

// NewGrid builds a Grid from a header and positional records. Empty cells become nil.
func NewGrid(columns []string, records [][]string) Grid {
	g := Grid{
		Columns: columns,
		Rows:    make([]Row, 0, len(records)),
	}

	for _, rec := range records {
		row := make(Row, len(columns))

		for i, col := range columns {
			if i >= len(rec) || rec[i] == "" {
				row[col] = nil

				continue
			}

			row[col] = rec[i]
		}

		g.Rows = append(g.Rows, row)
	}

	return g
}

// Len returns the number of rows.
func (g Grid) Len() int {
	return len(g.Rows)
}
