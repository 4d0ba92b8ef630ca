package models

// VocabularyVersion identifies the closed subgroup and grade vocabularies below.
// Adding a subgroup or grade is a vocabulary change and bumps this value.
const VocabularyVersion = 1

// Subgroup is a reporting category for a count.
type Subgroup string

// Subgroups.
const (
	SubgroupTotal                    Subgroup = "total"
	SubgroupWhite                    Subgroup = "white"
	SubgroupBlack                    Subgroup = "black"
	SubgroupHispanic                 Subgroup = "hispanic"
	SubgroupAsian                    Subgroup = "asian"
	SubgroupNativeAmerican           Subgroup = "native_american"
	SubgroupPacificIslander          Subgroup = "pacific_islander"
	SubgroupMultiracial              Subgroup = "multiracial"
	SubgroupEconomicallyDisadvantage Subgroup = "economically_disadvantaged"
	SubgroupDisability               Subgroup = "disability"
	SubgroupEnglishLearner           Subgroup = "english_learner"
	SubgroupGifted                   Subgroup = "gifted"
	SubgroupMigrant                  Subgroup = "migrant"
	SubgroupHomeless                 Subgroup = "homeless"
)

// Subgroups lists every non-total subgroup in emission order.
var Subgroups = []Subgroup{
	SubgroupWhite,
	SubgroupBlack,
	SubgroupHispanic,
	SubgroupAsian,
	SubgroupNativeAmerican,
	SubgroupPacificIslander,
	SubgroupMultiracial,
	SubgroupEconomicallyDisadvantage,
	SubgroupDisability,
	SubgroupEnglishLearner,
	SubgroupGifted,
	SubgroupMigrant,
	SubgroupHomeless,
}

// IsKnownSubgroup reports whether s belongs to the vocabulary, including "total".
func IsKnownSubgroup(s Subgroup) bool {
	if s == SubgroupTotal {
		return true
	}

	for _, sg := range Subgroups {
		if sg == s {
			return true
		}
	}

	return false
}

// GradeTotal is the grade_level of counts that span all grades.
const GradeTotal = "TOTAL"

// Grades lists the grade codes in emission order.
var Grades = []string{"PK", "K", "01", "02", "03", "04", "05", "06", "07", "08", "09", "10", "11", "12", "UG"}

// IsKnownGrade reports whether g is a grade code or GradeTotal.
func IsKnownGrade(g string) bool {
	if g == GradeTotal {
		return true
	}

	for _, code := range Grades {
		if code == g {
			return true
		}
	}

	return false
}

// Entity types assigned at extraction time. The classifier has the final word.
const (
	EntityDistrict = "District"
	EntityBuilding = "Building"
)
