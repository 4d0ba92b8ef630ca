// Package extract turns one source row into a canonical wide record, choosing
// the modern or legacy layout by school year.
package extract

import (
	"errors"
	"fmt"

	"ohenr/internal/models"
	"ohenr/internal/schema"
)

// Structural errors: the grid cannot yield any record.
var (
	ErrStructuralMismatch = errors.New("structural mismatch")
	ErrNoIdentifierColumn = errors.New("no district identifier column resolved")
	ErrNoCountColumns     = errors.New("neither a total nor any grade column resolved")
)

// Extractor dispatches rows to the era-specific field bindings. It holds only
// the read-only pattern table and is safe for concurrent use.
type Extractor struct {
	table          *schema.Table
	modernEraStart int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModernEraStart overrides the first end year of the modern layout.
func WithModernEraStart(year int) Option {
	return func(x *Extractor) {
		if year > 0 {
			x.modernEraStart = year
		}
	}
}

// New creates an extractor over a compiled pattern table.
func New(table *schema.Table, opts ...Option) *Extractor {
	x := &Extractor{
		table:          table,
		modernEraStart: table.ModernEraStart(),
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// Table returns the pattern table in use.
func (x *Extractor) Table() *schema.Table {
	return x.table
}

// Era returns the layout used for an end year. The split is by calendar, not by sniffing columns.
func (x *Extractor) Era(endYear int) schema.Era {
	if endYear >= x.modernEraStart {
		return schema.EraModern
	}

	return schema.EraLegacy
}

// Bind resolves every field of the year's era against a grid's columns.
// It fails with ErrStructuralMismatch when no record could be extracted.
func (x *Extractor) Bind(columns []string, endYear int) (*Binding, error) {
	era := x.Era(endYear)
	ep := x.table.Era(era)
	r := schema.NewResolver(columns)

	b := &Binding{
		endYear:      endYear,
		era:          era,
		table:        x.table,
		districtID:   r.Resolve(ep.Pattern(schema.FieldDistrictID)),
		buildingID:   r.Resolve(ep.Pattern(schema.FieldBuildingID)),
		districtName: r.Resolve(ep.Pattern(schema.FieldDistrictName)),
		buildingName: r.Resolve(ep.Pattern(schema.FieldBuildingName)),
		orgCategory:  r.Resolve(ep.Pattern(schema.FieldOrgCategory)),
		county:       r.Resolve(ep.Pattern(schema.FieldCounty)),
		total:        r.Resolve(ep.Pattern(schema.FieldTotal)),
	}

	for _, sg := range ep.Subgroups() {
		sc := subgroupColumn{
			subgroup: sg.Subgroup,
			count:    r.Resolve(sg.Count),
			percent:  r.Resolve(sg.Percent),
		}

		if sc.count != "" || sc.percent != "" {
			b.subgroups = append(b.subgroups, sc)
		}
	}

	for _, g := range ep.Grades() {
		if col := r.Resolve(g.Pattern); col != "" {
			b.grades = append(b.grades, gradeColumn{grade: g.Grade, column: col})
		}
	}

	for _, m := range ep.Metrics() {
		if col := r.Resolve(m.Pattern); col != "" {
			b.metrics = append(b.metrics, metricColumn{name: m.Name, column: col})
		}
	}

	if b.districtID == "" {
		return nil, fmt.Errorf("%w: %w (%s era, %d)", ErrStructuralMismatch, ErrNoIdentifierColumn, era, endYear)
	}

	if b.total == "" && len(b.grades) == 0 {
		return nil, fmt.Errorf("%w: %w (%s era, %d)", ErrStructuralMismatch, ErrNoCountColumns, era, endYear)
	}

	return b, nil
}

// ExtractRow binds the columns and extracts a single row.
func (x *Extractor) ExtractRow(columns []string, row models.Row, endYear int) (models.WideRecord, error) {
	b, err := x.Bind(columns, endYear)
	if err != nil {
		return models.WideRecord{}, err
	}

	return b.Row(row)
}
