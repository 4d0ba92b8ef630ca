package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"ohenr/internal/models"
)

//go:embed patterns.yaml
var defaultTable []byte

// Era identifies one of the two raw source layouts.
type Era string

// Eras.
const (
	EraModern Era = "modern"
	EraLegacy Era = "legacy"
)

// Field names a scalar identity field of a source row.
type Field string

// Identity fields.
const (
	FieldDistrictID   Field = "district_id"
	FieldBuildingID   Field = "building_id"
	FieldDistrictName Field = "district_name"
	FieldBuildingName Field = "building_name"
	FieldOrgCategory  Field = "org_category"
	FieldCounty       Field = "county"
	FieldTotal        Field = "total"
)

// Program types recognized by the classifier.
const (
	ProgramCommunity = "community"
	ProgramJVS       = "jvs"
	ProgramSTEM      = "stem"
)

// Pattern table errors.
var (
	ErrMissingEra          = errors.New("pattern table is missing an era")
	ErrUnknownEra          = errors.New("unknown era")
	ErrUnknownSubgroup     = errors.New("unknown subgroup")
	ErrUnknownGrade        = errors.New("unknown grade")
	ErrUnknownProgramType  = errors.New("unknown program type")
	ErrMissingDistrictID   = errors.New("district_id has no patterns")
	ErrInvalidEraThreshold = errors.New("modern_era_start must be a plausible year")
)

type tableFile struct {
	Version          int                `yaml:"version"`
	ModernEraStart   int                `yaml:"modern_era_start"`
	NoChildSentinels []string           `yaml:"no_child_sentinels"`
	Classification   classificationFile `yaml:"classification"`
	Eras             map[string]eraFile `yaml:"eras"`
}

type classificationFile struct {
	TopLevel     []string            `yaml:"top_level"`
	ChildLevel   []string            `yaml:"child_level"`
	ProgramTypes map[string][]string `yaml:"program_types"`
}

type eraFile struct {
	Identity  identityFile            `yaml:"identity"`
	Total     []string                `yaml:"total"`
	Subgroups map[string]subgroupFile `yaml:"subgroups"`
	Grades    map[string][]string     `yaml:"grades"`
	Metrics   map[string][]string     `yaml:"metrics"`
}

type identityFile struct {
	DistrictID   []string `yaml:"district_id"`
	BuildingID   []string `yaml:"building_id"`
	DistrictName []string `yaml:"district_name"`
	BuildingName []string `yaml:"building_name"`
	OrgCategory  []string `yaml:"org_category"`
	County       []string `yaml:"county"`
}

type subgroupFile struct {
	Count   []string `yaml:"count"`
	Percent []string `yaml:"percent"`
}

// SubgroupPatterns holds the count and percentage patterns of one subgroup.
type SubgroupPatterns struct {
	Subgroup models.Subgroup
	Count    *Pattern
	Percent  *Pattern
}

// GradePattern holds the pattern of one grade column.
type GradePattern struct {
	Grade   string
	Pattern *Pattern
}

// MetricPattern holds the pattern of one score or rate column.
type MetricPattern struct {
	Name    string
	Pattern *Pattern
}

// ProgramType is a classifier rule: a flag name and its word-start matcher.
type ProgramType struct {
	Name    string
	matcher *regexp.Regexp
}

// Matches reports whether a free-text category mentions the program type.
func (pt ProgramType) Matches(category string) bool {
	return pt.matcher != nil && pt.matcher.MatchString(category)
}

// EraPatterns is the compiled pattern set of one era.
type EraPatterns struct {
	era       Era
	identity  map[Field]*Pattern
	subgroups []SubgroupPatterns
	grades    []GradePattern
	metrics   []MetricPattern
}

// Era returns the era these patterns belong to.
func (e *EraPatterns) Era() Era {
	return e.era
}

// Pattern returns the pattern of an identity field or the total; nil when the era has none.
func (e *EraPatterns) Pattern(f Field) *Pattern {
	return e.identity[f]
}

// Subgroups returns the subgroup patterns in vocabulary order.
func (e *EraPatterns) Subgroups() []SubgroupPatterns {
	return append([]SubgroupPatterns(nil), e.subgroups...)
}

// Grades returns the grade patterns in grade order.
func (e *EraPatterns) Grades() []GradePattern {
	return append([]GradePattern(nil), e.grades...)
}

// Metrics returns the metric patterns sorted by name.
func (e *EraPatterns) Metrics() []MetricPattern {
	return append([]MetricPattern(nil), e.metrics...)
}

// Table is the compiled, read-only pattern table. It is safe for concurrent use.
type Table struct {
	version        int
	modernEraStart int
	noChild        map[string]bool
	topLevel       map[string]bool
	childLevel     map[string]bool
	programs       []ProgramType
	eras           map[Era]*EraPatterns
}

// Default compiles the embedded pattern table.
func Default() (*Table, error) {
	return ParseTable(defaultTable)
}

// LoadTable compiles a pattern table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern table: %w", err)
	}

	return ParseTable(data)
}

// ParseTable compiles a pattern table from YAML.
func ParseTable(data []byte) (*Table, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse pattern table: %w", err)
	}

	return compile(&tf)
}

func compile(tf *tableFile) (*Table, error) {
	if tf.ModernEraStart < 1990 || tf.ModernEraStart > 2100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEraThreshold, tf.ModernEraStart)
	}

	t := &Table{
		version:        tf.Version,
		modernEraStart: tf.ModernEraStart,
		noChild:        lowerSet(tf.NoChildSentinels),
		topLevel:       lowerSet(tf.Classification.TopLevel),
		childLevel:     lowerSet(tf.Classification.ChildLevel),
		eras:           make(map[Era]*EraPatterns, 2),
	}

	programs, err := compilePrograms(tf.Classification.ProgramTypes)
	if err != nil {
		return nil, err
	}

	t.programs = programs

	for name := range tf.Eras {
		if Era(name) != EraModern && Era(name) != EraLegacy {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEra, name)
		}
	}

	for _, era := range []Era{EraModern, EraLegacy} {
		ef, ok := tf.Eras[string(era)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingEra, era)
		}

		ep, err := compileEra(era, ef)
		if err != nil {
			return nil, fmt.Errorf("era %s: %w", era, err)
		}

		t.eras[era] = ep
	}

	return t, nil
}

func compileEra(era Era, ef eraFile) (*EraPatterns, error) {
	if len(ef.Identity.DistrictID) == 0 {
		return nil, ErrMissingDistrictID
	}

	ep := &EraPatterns{
		era:      era,
		identity: make(map[Field]*Pattern, 7),
	}

	identity := map[Field][]string{
		FieldDistrictID:   ef.Identity.DistrictID,
		FieldBuildingID:   ef.Identity.BuildingID,
		FieldDistrictName: ef.Identity.DistrictName,
		FieldBuildingName: ef.Identity.BuildingName,
		FieldOrgCategory:  ef.Identity.OrgCategory,
		FieldCounty:       ef.Identity.County,
		FieldTotal:        ef.Total,
	}

	for field, alts := range identity {
		p, err := NewPattern(string(field), alts...)
		if err != nil {
			return nil, err
		}

		ep.identity[field] = p
	}

	for name := range ef.Subgroups {
		if sg := models.Subgroup(name); sg == models.SubgroupTotal || !models.IsKnownSubgroup(sg) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSubgroup, name)
		}
	}

	for _, sg := range models.Subgroups {
		sf, ok := ef.Subgroups[string(sg)]
		if !ok {
			continue
		}

		count, err := NewPattern(string(sg)+"_count", sf.Count...)
		if err != nil {
			return nil, err
		}

		pct, err := NewPattern(string(sg)+"_percent", sf.Percent...)
		if err != nil {
			return nil, err
		}

		ep.subgroups = append(ep.subgroups, SubgroupPatterns{Subgroup: sg, Count: count, Percent: pct})
	}

	for code := range ef.Grades {
		if code == models.GradeTotal || !models.IsKnownGrade(code) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGrade, code)
		}
	}

	for _, code := range models.Grades {
		alts, ok := ef.Grades[code]
		if !ok {
			continue
		}

		p, err := NewPattern("grade_"+code, alts...)
		if err != nil {
			return nil, err
		}

		ep.grades = append(ep.grades, GradePattern{Grade: code, Pattern: p})
	}

	names := make([]string, 0, len(ef.Metrics))
	for name := range ef.Metrics {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		p, err := NewPattern(name, ef.Metrics[name]...)
		if err != nil {
			return nil, err
		}

		ep.metrics = append(ep.metrics, MetricPattern{Name: name, Pattern: p})
	}

	return ep, nil
}

func compilePrograms(src map[string][]string) ([]ProgramType, error) {
	programs := make([]ProgramType, 0, len(src))

	for _, name := range []string{ProgramCommunity, ProgramJVS, ProgramSTEM} {
		words, ok := src[name]
		if !ok || len(words) == 0 {
			continue
		}

		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = regexp.QuoteMeta(strings.TrimSpace(w))
		}

		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`)
		if err != nil {
			return nil, fmt.Errorf("program type %s: %w", name, err)
		}

		programs = append(programs, ProgramType{Name: name, matcher: re})
	}

	for name := range src {
		switch name {
		case ProgramCommunity, ProgramJVS, ProgramSTEM:
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProgramType, name)
		}
	}

	return programs, nil
}

// Version returns the table version; it changes whenever patterns change.
func (t *Table) Version() int {
	return t.version
}

// ModernEraStart returns the first end year of the modern layout.
func (t *Table) ModernEraStart() int {
	return t.modernEraStart
}

// Era returns the compiled patterns of an era.
func (t *Table) Era(e Era) *EraPatterns {
	return t.eras[e]
}

// IsNoChildSentinel reports whether a raw child identifier means "no building".
func (t *Table) IsNoChildSentinel(raw string) bool {
	return t.noChild[strings.ToLower(strings.TrimSpace(raw))]
}

// IsTopLevelCategory reports whether a category string names a top-level entity.
func (t *Table) IsTopLevelCategory(category string) bool {
	return t.topLevel[strings.ToLower(strings.TrimSpace(category))]
}

// IsChildLevelCategory reports whether a category string names a building.
func (t *Table) IsChildLevelCategory(category string) bool {
	return t.childLevel[strings.ToLower(strings.TrimSpace(category))]
}

// ProgramTypes returns the classifier program rules.
func (t *Table) ProgramTypes() []ProgramType {
	return append([]ProgramType(nil), t.programs...)
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = true
	}

	return set
}
