// Package normalizer turns a parsed source grid into canonical wide, long and
// classified enrollment records.
package normalizer

import (
	"fmt"

	"ohenr/internal/extract"
	"ohenr/internal/models"
	"ohenr/internal/schema"
)

// BatchError reports a grid that yielded no records at all. It names the
// year and source so the pattern table can be updated.
type BatchError struct {
	EndYear int
	Source  string
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("end year %d (%s): %v", e.EndYear, e.Source, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// RowExclusion records a source row dropped because its identity could not be normalized.
type RowExclusion struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Report summarizes one processed grid.
type Report struct {
	EndYear        int            `json:"end_year"`
	Era            schema.Era     `json:"era"`
	Source         string         `json:"source"`
	RowsRead       int            `json:"rows_read"`
	RowsExtracted  int            `json:"rows_extracted"`
	RowsExcluded   int            `json:"rows_excluded"`
	RecordsEmitted int            `json:"records_emitted"`
	Exclusions     []RowExclusion `json:"exclusions,omitempty"`
}

// ExclusionRatio returns the share of rows read that were excluded.
func (r Report) ExclusionRatio() float64 {
	if r.RowsRead == 0 {
		return 0
	}

	return float64(r.RowsExcluded) / float64(r.RowsRead)
}

// Result is the output of one processed grid.
type Result struct {
	Wide    []models.WideRecord
	Records []models.ClassifiedRecord
	Report  Report
}

// Processor runs extract, tidy and classify over a grid. It holds only
// read-only state and may be shared by goroutines processing different years.
type Processor struct {
	extractor  *extract.Extractor
	tidier     *Tidier
	classifier *Classifier
}

// NewProcessor creates a new processor over a compiled pattern table.
func NewProcessor(table *schema.Table, opts ...extract.Option) *Processor {
	return &Processor{
		extractor:  extract.New(table, opts...),
		tidier:     NewTidier(),
		classifier: NewClassifier(table),
	}
}

// Extractor returns the era dispatcher in use.
func (p *Processor) Extractor() *extract.Extractor {
	return p.extractor
}

// Process extracts, tidies and classifies a grid.
func (p *Processor) Process(grid models.Grid, endYear int, source string) (*Result, error) {
	res, err := p.ProcessWide(grid, endYear, source)
	if err != nil {
		return nil, err
	}

	res.Records = p.TidyWide(res.Wide)
	res.Report.RecordsEmitted = len(res.Records)

	return res, nil
}

// ProcessWide extracts the wide records of a grid. Rows whose identifiers
// cannot be normalized are excluded and counted in the report.
func (p *Processor) ProcessWide(grid models.Grid, endYear int, source string) (*Result, error) {
	binding, err := p.extractor.Bind(grid.Columns, endYear)
	if err != nil {
		return nil, &BatchError{EndYear: endYear, Source: source, Err: err}
	}

	res := &Result{
		Wide: make([]models.WideRecord, 0, grid.Len()),
		Report: Report{
			EndYear:  endYear,
			Era:      binding.Era(),
			Source:   source,
			RowsRead: grid.Len(),
		},
	}

	for i, row := range grid.Rows {
		rec, err := binding.Row(row)
		if err != nil {
			res.Report.RowsExcluded++
			res.Report.Exclusions = append(res.Report.Exclusions, RowExclusion{Row: i, Reason: err.Error()})

			continue
		}

		res.Wide = append(res.Wide, rec)
	}

	res.Report.RowsExtracted = len(res.Wide)

	return res, nil
}

// TidyWide reshapes and classifies already extracted wide records.
func (p *Processor) TidyWide(wide []models.WideRecord) []models.ClassifiedRecord {
	return p.classifier.ClassifyAll(p.tidier.Tidy(wide))
}
