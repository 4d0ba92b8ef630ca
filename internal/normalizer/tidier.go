package normalizer

import (
	"ohenr/internal/models"
)

// Tidier reshapes wide records into one long record per (entity, grade
// level, subgroup). It keeps no state between calls.
type Tidier struct{}

// NewTidier creates a new tidier instance.
func NewTidier() *Tidier {
	return &Tidier{}
}

// Tidy emits, for every wide record, the total row, one row per populated
// subgroup at grade TOTAL and one row per populated grade with subgroup
// total. Null values are never emitted. Rows come out in vocabulary order.
func (t *Tidier) Tidy(records []models.WideRecord) []models.LongRecord {
	out := make([]models.LongRecord, 0, len(records)*4)

	for i := range records {
		out = t.appendRecord(out, &records[i])
	}

	return out
}

func (t *Tidier) appendRecord(out []models.LongRecord, w *models.WideRecord) []models.LongRecord {
	if w.Total != nil {
		out = append(out, longRow(w, models.GradeTotal, models.SubgroupTotal, *w.Total, totalRatio(*w.Total)))
	}

	for _, sg := range models.Subgroups {
		v := w.Subgroups[sg]
		if v == nil {
			continue
		}

		out = append(out, longRow(w, models.GradeTotal, sg, *v, ratio(*v, w.Total)))
	}

	for _, grade := range models.Grades {
		v := w.Grades[grade]
		if v == nil {
			continue
		}

		out = append(out, longRow(w, grade, models.SubgroupTotal, *v, ratio(*v, w.Total)))
	}

	return out
}

func longRow(w *models.WideRecord, grade string, sg models.Subgroup, value float64, r *float64) models.LongRecord {
	return models.LongRecord{
		EndYear:      w.EndYear,
		DistrictID:   w.DistrictID,
		BuildingID:   w.BuildingID,
		DistrictName: w.DistrictName,
		BuildingName: w.BuildingName,
		EntityType:   w.EntityType,
		OrgCategory:  w.OrgCategory,
		County:       w.County,
		GradeLevel:   grade,
		Subgroup:     sg,
		Value:        value,
		Ratio:        r,
	}
}

// ratio is value / total; nil when total is nil or zero.
func ratio(value float64, total *float64) *float64 {
	if total == nil || *total == 0 {
		return nil
	}

	r := value / *total

	return &r
}

func totalRatio(total float64) *float64 {
	if total == 0 {
		return nil
	}

	return models.Float(1)
}
