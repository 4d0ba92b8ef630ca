package normalizer

import (
	"encoding/json"
	"errors"
	"testing"

	"ohenr/internal/extract"
	"ohenr/internal/models"
	"ohenr/pkg/sanitize"
)

var modernGrid = models.NewGrid(
	[]string{"District IRN", "District Name", "Building IRN", "Building Name", "Organization Type", "Total Enrollment", "White", "Pct Hispanic", "Grade 1", "Grade 2"},
	[][]string{
		{"43752", "Columbus City", "", "", "City School District", "1,000", "400", "10", "80", "*"},
		{"43752", "Columbus City", "12345", "Main Elementary", "Public School", "200", "<10", "12.5", "100", "100"},
		{"ABC", "Bad Row", "", "", "Local", "10", "1", "", "", ""},
		{"43802", "Ohio Virtual Academy", "143198", "Ohio Virtual Academy", "Community School", "N/A", "NC", "", "", ""},
	},
)

func TestProcessor_Process(t *testing.T) {
	p := NewProcessor(newTable(t))

	res, err := p.Process(modernGrid, 2019, "test.csv")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	rep := res.Report
	if rep.RowsRead != 4 || rep.RowsExtracted != 3 || rep.RowsExcluded != 1 {
		t.Errorf("Report rows = read %d extracted %d excluded %d, want 4 3 1", rep.RowsRead, rep.RowsExtracted, rep.RowsExcluded)
	}

	if len(rep.Exclusions) != 1 || rep.Exclusions[0].Row != 2 {
		t.Fatalf("Exclusions = %+v, want row 2", rep.Exclusions)
	}

	if rep.Era != "modern" || rep.Source != "test.csv" || rep.EndYear != 2019 {
		t.Errorf("Report = %+v", rep)
	}

	// district: total, white, hispanic, grade 1; building: total, hispanic, grade 1, grade 2
	if len(res.Records) != 8 || rep.RecordsEmitted != 8 {
		t.Fatalf("len(Records) = %d (reported %d), want 8", len(res.Records), rep.RecordsEmitted)
	}

	for _, rec := range res.Records {
		if rec.DistrictID == "043802" {
			t.Errorf("record for all-suppressed row emitted: %+v", rec)
		}

		if rec.Subgroup == models.SubgroupHispanic && rec.BuildingID == "012345" && rec.Value != 25 {
			t.Errorf("building hispanic = %v, want 25", rec.Value)
		}

		if rec.IsDistrict != (rec.BuildingID == "") {
			t.Errorf("%s/%s IsDistrict = %v", rec.DistrictID, rec.BuildingID, rec.IsDistrict)
		}
	}
}

func TestProcessor_ExclusionReason(t *testing.T) {
	p := NewProcessor(newTable(t))

	res, err := p.ProcessWide(modernGrid, 2019, "test.csv")
	if err != nil {
		t.Fatalf("ProcessWide() error = %v", err)
	}

	if res.Records != nil {
		t.Errorf("ProcessWide() Records = %d, want nil", len(res.Records))
	}

	if got := res.Report.ExclusionRatio(); got != 0.25 {
		t.Errorf("ExclusionRatio() = %v, want 0.25", got)
	}

	if reason := res.Report.Exclusions[0].Reason; reason == "" {
		t.Error("exclusion reason is empty")
	}

	_, err = p.Extractor().ExtractRow(modernGrid.Columns, modernGrid.Rows[2], 2019)
	if !errors.Is(err, sanitize.ErrInvalidIdentifier) {
		t.Errorf("ExtractRow(bad row) error = %v, want ErrInvalidIdentifier", err)
	}
}

func TestProcessor_StructuralMismatch(t *testing.T) {
	p := NewProcessor(newTable(t))
	grid := models.NewGrid([]string{"Name", "Address"}, [][]string{{"x", "y"}})

	_, err := p.Process(grid, 2012, "legacy.xls")

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("Process() error = %v, want *BatchError", err)
	}

	if batchErr.EndYear != 2012 || batchErr.Source != "legacy.xls" {
		t.Errorf("BatchError = %+v", batchErr)
	}

	if !errors.Is(err, extract.ErrStructuralMismatch) {
		t.Errorf("Process() error = %v, want ErrStructuralMismatch", err)
	}
}

func TestProcessor_Idempotent(t *testing.T) {
	p := NewProcessor(newTable(t))

	run := func() []byte {
		res, err := p.Process(modernGrid, 2019, "test.csv")
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}

		data, err := json.Marshal(res.Records)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}

		return data
	}

	first, second := run(), run()
	if string(first) != string(second) {
		t.Errorf("Process() output differs between runs:\n%s\n%s", first, second)
	}
}

func TestProcessor_NullPropagation(t *testing.T) {
	p := NewProcessor(newTable(t))
	grid := models.NewGrid(
		[]string{"District IRN", "Grade 1", "Grade 2", "Gifted"},
		[][]string{{"1", "10", "20", "3"}, {"2", "*", "5", ""}},
	)

	res, err := p.Process(grid, 2020, "no-total.csv")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(res.Records) != 4 {
		t.Fatalf("len(Records) = %d, want 4", len(res.Records))
	}

	for _, rec := range res.Records {
		if rec.Ratio != nil {
			t.Errorf("%s %s/%s ratio = %v, want nil", rec.DistrictID, rec.GradeLevel, rec.Subgroup, *rec.Ratio)
		}
	}
}

func TestProcessor_LegacyFallbackTotal(t *testing.T) {
	p := NewProcessor(newTable(t))
	grid := models.NewGrid(
		[]string{"IRN", "School IRN", "District", "G1", "G2", "LEP"},
		[][]string{{"45187", "---", "Akron City", "30", "<10", "6"}},
	)

	res, err := p.Process(grid, 2008, "legacy.csv")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	var total, el *models.ClassifiedRecord

	for i := range res.Records {
		rec := &res.Records[i]
		if rec.GradeLevel == models.GradeTotal && rec.Subgroup == models.SubgroupTotal {
			total = rec
		}

		if rec.Subgroup == models.SubgroupEnglishLearner {
			el = rec
		}
	}

	if total == nil || total.Value != 30 {
		t.Fatalf("total record = %+v, want value 30", total)
	}

	if el == nil || el.Ratio == nil || *el.Ratio != 0.2 {
		t.Errorf("english_learner record = %+v, want ratio 0.2", el)
	}

	if total.DistrictID != "045187" || total.DistrictName != "Akron City" || !total.IsDistrict {
		t.Errorf("total record identity = %+v", total)
	}
}
