// Package quality provides batch-level data quality checks over processed enrollment records.
package quality

import (
	"errors"
	"fmt"
	"strings"

	"ohenr/internal/models"
	"ohenr/internal/normalizer"
)

// ErrCheckFailed is returned by Result.Err when a batch has quality errors.
var ErrCheckFailed = errors.New("quality check failed")

// Check names.
const (
	CheckExclusionRatio = "exclusion_ratio"
	CheckEmptyOutput    = "empty_output"
)

// Issue is a quality error in one batch.
type Issue struct {
	Check   string
	EndYear int
	Message string
}

// Stats contains check statistics.
type Stats struct {
	RowsRead         int
	RowsExcluded     int
	Records          int
	NegativeValues   int
	ExceedsTotal     int
	DuplicateRecords int
	ExclusionRatio   float64
}

// Result contains check results.
type Result struct {
	Errors   []Issue
	Warnings []string
	Stats    Stats
	IsValid  bool
}

// Checker flags batches that look like the source format drifted.
type Checker struct {
	maxExclusionRatio float64
	failOnExclusion   bool
}

// NewChecker creates a checker. A batch whose excluded-row share exceeds
// maxExclusionRatio gets a warning, or fails when failOnExclusion is set.
// Excluded rows alone never fail a batch otherwise.
func NewChecker(maxExclusionRatio float64, failOnExclusion bool) *Checker {
	return &Checker{
		maxExclusionRatio: maxExclusionRatio,
		failOnExclusion:   failOnExclusion,
	}
}

// Check inspects a processed batch and its classified records.
func (c *Checker) Check(report normalizer.Report, records []models.ClassifiedRecord) *Result {
	result := c.begin(report, len(records))

	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		if rec.Value < 0 {
			result.Stats.NegativeValues++
		}

		if rec.Subgroup != models.SubgroupTotal && rec.Ratio != nil && *rec.Ratio > 1 {
			result.Stats.ExceedsTotal++
		}

		key := strings.Join([]string{rec.DistrictID, rec.BuildingID, rec.GradeLevel, string(rec.Subgroup)}, "|")
		if seen[key] {
			result.Stats.DuplicateRecords++
		}

		seen[key] = true
	}

	c.finish(result, report.EndYear)

	return result
}

// CheckWide inspects a batch that was extracted but not tidied.
func (c *Checker) CheckWide(report normalizer.Report, wide []models.WideRecord) *Result {
	result := c.begin(report, len(wide))

	seen := make(map[string]bool, len(wide))

	for i := range wide {
		w := &wide[i]

		result.Stats.NegativeValues += countNegative(w)

		key := w.DistrictID + "|" + w.BuildingID
		if seen[key] {
			result.Stats.DuplicateRecords++
		}

		seen[key] = true
	}

	c.finish(result, report.EndYear)

	return result
}

func (c *Checker) begin(report normalizer.Report, records int) *Result {
	result := &Result{
		IsValid:  true,
		Errors:   []Issue{},
		Warnings: []string{},
		Stats: Stats{
			RowsRead:       report.RowsRead,
			RowsExcluded:   report.RowsExcluded,
			Records:        records,
			ExclusionRatio: report.ExclusionRatio(),
		},
	}

	if result.Stats.ExclusionRatio > c.maxExclusionRatio {
		msg := fmt.Sprintf(
			"%d of %d rows excluded (%.1f%%, limit %.1f%%): identifier columns may have changed",
			report.RowsExcluded,
			report.RowsRead,
			result.Stats.ExclusionRatio*100,
			c.maxExclusionRatio*100,
		)

		if c.failOnExclusion {
			result.IsValid = false
			result.Errors = append(result.Errors, Issue{Check: CheckExclusionRatio, EndYear: report.EndYear, Message: msg})
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%d: %s", report.EndYear, msg))
		}
	}

	if records == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, Issue{
			Check:   CheckEmptyOutput,
			EndYear: report.EndYear,
			Message: fmt.Sprintf("no records produced from %d rows", report.RowsRead),
		})
	}

	return result
}

func (c *Checker) finish(result *Result, endYear int) {
	if n := result.Stats.NegativeValues; n > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d: %d negative values", endYear, n))
	}

	if n := result.Stats.ExceedsTotal; n > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d: %d subgroup counts exceed their total", endYear, n))
	}

	if n := result.Stats.DuplicateRecords; n > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d: %d duplicate records", endYear, n))
	}
}

func countNegative(w *models.WideRecord) int {
	n := 0

	if w.Total != nil && *w.Total < 0 {
		n++
	}

	for _, v := range w.Subgroups {
		if v != nil && *v < 0 {
			n++
		}
	}

	for _, v := range w.Grades {
		if v != nil && *v < 0 {
			n++
		}
	}

	return n
}

// Err returns nil for a valid result, else ErrCheckFailed with every error message.
func (r *Result) Err() error {
	if r.IsValid {
		return nil
	}

	msgs := make([]string, len(r.Errors))
	for i, issue := range r.Errors {
		msgs[i] = issue.Message
	}

	return fmt.Errorf("%w: %s", ErrCheckFailed, strings.Join(msgs, "; "))
}

// String returns string representation of the check result.
func (r *Result) String() string {
	status := "VALID"
	if !r.IsValid {
		status = "INVALID"
	}

	return fmt.Sprintf(
		"%s | Rows: %d | Excluded: %d | Records: %d | Warnings: %d",
		status,
		r.Stats.RowsRead,
		r.Stats.RowsExcluded,
		r.Stats.Records,
		len(r.Warnings),
	)
}
