package models

// WideRecord is one source row in canonical form. Every numeric field is
// either nil or a finite number.
type WideRecord struct {
	EndYear      int                   `json:"end_year"`
	DistrictID   string                `json:"district_irn"`
	BuildingID   string                `json:"building_irn,omitempty"`
	DistrictName string                `json:"district_name"`
	BuildingName string                `json:"building_name,omitempty"`
	EntityType   string                `json:"entity_type"`
	OrgCategory  string                `json:"org_category,omitempty"`
	County       string                `json:"county,omitempty"`
	Total        *float64              `json:"total"`
	Subgroups    map[Subgroup]*float64 `json:"subgroups,omitempty"`
	Grades       map[string]*float64   `json:"grades,omitempty"`
	Metrics      map[string]*float64   `json:"metrics,omitempty"`
}

// LongRecord is one (entity, grade level, subgroup) count. Value is never
// null: rows without a value are not emitted.
type LongRecord struct {
	EndYear      int      `json:"end_year"`
	DistrictID   string   `json:"district_irn"`
	BuildingID   string   `json:"building_irn,omitempty"`
	DistrictName string   `json:"district_name"`
	BuildingName string   `json:"building_name,omitempty"`
	EntityType   string   `json:"entity_type"`
	OrgCategory  string   `json:"org_category,omitempty"`
	County       string   `json:"county,omitempty"`
	GradeLevel   string   `json:"grade_level"`
	Subgroup     Subgroup `json:"subgroup"`
	Value        float64  `json:"n_students"`
	Ratio        *float64 `json:"pct"`
}

// ClassifiedRecord is a LongRecord with aggregation flags.
type ClassifiedRecord struct {
	LongRecord

	IsDistrict    bool `json:"is_district"`
	IsBuilding    bool `json:"is_building"`
	IsCommunity   bool `json:"is_community"`
	IsJVS         bool `json:"is_jvs"`
	IsSTEM        bool `json:"is_stem"`
	IsTraditional bool `json:"is_traditional"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
