package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"ohenr/internal/models"
	"ohenr/internal/schema"
	"ohenr/pkg/sanitize"
)

type subgroupColumn struct {
	subgroup models.Subgroup
	count    string
	percent  string
}

type gradeColumn struct {
	grade  string
	column string
}

type metricColumn struct {
	name   string
	column string
}

// ColumnMatch reports which source column a field resolved to ("" when absent).
type ColumnMatch struct {
	Field  string
	Column string
}

// Binding is the set of source columns resolved for one grid and era.
// It is read-only after Bind and may be shared across goroutines.
type Binding struct {
	table        *schema.Table
	era          schema.Era
	endYear      int
	districtID   string
	buildingID   string
	districtName string
	buildingName string
	orgCategory  string
	county       string
	total        string
	subgroups    []subgroupColumn
	grades       []gradeColumn
	metrics      []metricColumn
}

// Era returns the layout the binding was resolved for.
func (b *Binding) Era() schema.Era {
	return b.era
}

// EndYear returns the school year end the binding was resolved for.
func (b *Binding) EndYear() int {
	return b.endYear
}

// HasExplicitTotal reports whether a total column resolved.
func (b *Binding) HasExplicitTotal() bool {
	return b.total != ""
}

// CanSumGrades reports whether the total falls back to the sum of grade
// columns: legacy layout, no total column, at least one grade column.
func (b *Binding) CanSumGrades() bool {
	return b.era == schema.EraLegacy && b.total == "" && len(b.grades) > 0
}

// Columns lists every identity, count and metric field with its resolved column.
func (b *Binding) Columns() []ColumnMatch {
	matches := []ColumnMatch{
		{Field: string(schema.FieldDistrictID), Column: b.districtID},
		{Field: string(schema.FieldBuildingID), Column: b.buildingID},
		{Field: string(schema.FieldDistrictName), Column: b.districtName},
		{Field: string(schema.FieldBuildingName), Column: b.buildingName},
		{Field: string(schema.FieldOrgCategory), Column: b.orgCategory},
		{Field: string(schema.FieldCounty), Column: b.county},
		{Field: string(schema.FieldTotal), Column: b.total},
	}

	for _, sg := range b.subgroups {
		matches = append(matches,
			ColumnMatch{Field: string(sg.subgroup) + "_count", Column: sg.count},
			ColumnMatch{Field: string(sg.subgroup) + "_percent", Column: sg.percent},
		)
	}

	for _, g := range b.grades {
		matches = append(matches, ColumnMatch{Field: "grade_" + g.grade, Column: g.column})
	}

	for _, m := range b.metrics {
		matches = append(matches, ColumnMatch{Field: m.name, Column: m.column})
	}

	return matches
}

// Row builds the wide record of one source row. Missing optional fields
// become nil; an identifier that cannot be normalized is an error wrapping
// sanitize.ErrInvalidIdentifier.
func (b *Binding) Row(row models.Row) (models.WideRecord, error) {
	districtID, err := sanitize.ID(row[b.districtID])
	if err != nil {
		return models.WideRecord{}, fmt.Errorf("district irn: %w", err)
	}

	rec := models.WideRecord{
		EndYear:      b.endYear,
		DistrictID:   districtID,
		DistrictName: b.text(row, b.districtName),
		BuildingName: b.text(row, b.buildingName),
		EntityType:   models.EntityDistrict,
		OrgCategory:  b.text(row, b.orgCategory),
		County:       b.text(row, b.county),
	}

	if b.buildingID != "" && !b.isNoChild(row[b.buildingID]) {
		buildingID, err := sanitize.ID(row[b.buildingID])
		if err != nil {
			return models.WideRecord{}, fmt.Errorf("building irn: %w", err)
		}

		rec.BuildingID = buildingID
		rec.EntityType = models.EntityBuilding
	}

	if len(b.grades) > 0 {
		rec.Grades = make(map[string]*float64, len(b.grades))
		for _, g := range b.grades {
			rec.Grades[g.grade] = sanitize.Number(row[g.column])
		}
	}

	rec.Total = b.resolveTotal(row)
	if rec.Total == nil && b.CanSumGrades() {
		rec.Total = b.sumGrades(rec.Grades)
	}

	if len(b.subgroups) > 0 {
		rec.Subgroups = make(map[models.Subgroup]*float64, len(b.subgroups))
		for _, sg := range b.subgroups {
			rec.Subgroups[sg.subgroup] = b.subgroupCount(row, sg, rec.Total)
		}
	}

	if len(b.metrics) > 0 {
		rec.Metrics = make(map[string]*float64, len(b.metrics))
		for _, m := range b.metrics {
			rec.Metrics[m.name] = percentNumber(row[m.column])
		}
	}

	return rec, nil
}

// resolveTotal is the first total stage: the explicit column only.
func (b *Binding) resolveTotal(row models.Row) *float64 {
	if b.total == "" {
		return nil
	}

	return sanitize.Number(row[b.total])
}

// sumGrades is the fallback total stage. Null grades count as zero. Grades
// are added in binding order so the float sum is the same on every run.
func (b *Binding) sumGrades(grades map[string]*float64) *float64 {
	var sum float64

	for _, g := range b.grades {
		if v := grades[g.grade]; v != nil {
			sum += *v
		}
	}

	return &sum
}

func (b *Binding) subgroupCount(row models.Row, sg subgroupColumn, total *float64) *float64 {
	if sg.count != "" {
		return sanitize.Number(row[sg.count])
	}

	if sg.percent == "" {
		return nil
	}

	return ReconstructCount(percentNumber(row[sg.percent]), total)
}

// ReconstructCount approximates a count from a percentage of total. The
// result is rounded half to even, so count -> percent -> count is lossy and
// not guaranteed to reproduce the published count.
func ReconstructCount(pct, total *float64) *float64 {
	if pct == nil || total == nil {
		return nil
	}

	n := math.RoundToEven(*pct / 100 * *total)

	return &n
}

func (b *Binding) isNoChild(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return b.table.IsNoChildSentinel(v)
	}

	return false
}

func (b *Binding) text(row models.Row, column string) string {
	if column == "" {
		return ""
	}

	return cellText(row[column])
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}

	return strings.TrimSpace(fmt.Sprint(v))
}

// percentNumber sanitizes a rate cell, tolerating a trailing percent sign.
func percentNumber(raw any) *float64 {
	if s, ok := raw.(string); ok {
		raw = strings.TrimSuffix(strings.TrimSpace(s), "%")
	}

	return sanitize.Number(raw)
}
