package normalizer

import (
	"ohenr/internal/models"
	"ohenr/internal/schema"
)

// Classifier derives aggregation flags from the free-text category and the
// identifiers of a long record. It never fails.
type Classifier struct {
	table    *schema.Table
	programs []schema.ProgramType
}

// NewClassifier creates a classifier over the pattern table's category rules.
func NewClassifier(table *schema.Table) *Classifier {
	return &Classifier{
		table:    table,
		programs: table.ProgramTypes(),
	}
}

// Classify flags one record. Exactly one of IsDistrict and IsBuilding is set,
// and EntityType is rewritten to agree with them. A top-level category wins;
// otherwise a building IRN or a child-level category makes a building.
func (c *Classifier) Classify(rec models.LongRecord) models.ClassifiedRecord {
	out := models.ClassifiedRecord{LongRecord: rec}

	if !c.table.IsTopLevelCategory(rec.OrgCategory) {
		out.IsBuilding = rec.BuildingID != "" || c.table.IsChildLevelCategory(rec.OrgCategory)
	}

	out.IsDistrict = !out.IsBuilding

	if out.IsDistrict {
		out.EntityType = models.EntityDistrict
	} else {
		out.EntityType = models.EntityBuilding
	}

	for _, pt := range c.programs {
		if !pt.Matches(rec.OrgCategory) {
			continue
		}

		switch pt.Name {
		case schema.ProgramCommunity:
			out.IsCommunity = true
		case schema.ProgramJVS:
			out.IsJVS = true
		case schema.ProgramSTEM:
			out.IsSTEM = true
		}
	}

	out.IsTraditional = !out.IsCommunity && !out.IsJVS && !out.IsSTEM

	return out
}

// ClassifyAll flags every record, preserving order.
func (c *Classifier) ClassifyAll(records []models.LongRecord) []models.ClassifiedRecord {
	out := make([]models.ClassifiedRecord, len(records))
	for i, rec := range records {
		out[i] = c.Classify(rec)
	}

	return out
}
