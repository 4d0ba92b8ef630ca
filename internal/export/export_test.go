package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mattn/go-runewidth"

	"ohenr/internal/extract"
	"ohenr/internal/models"
	"ohenr/internal/normalizer"
	"ohenr/internal/schema"
)

var wideRecords = []models.WideRecord{
	{
		EndYear:      2019,
		DistrictID:   "043752",
		DistrictName: "Columbus City",
		EntityType:   models.EntityDistrict,
		Total:        models.Float(1000),
		Subgroups:    map[models.Subgroup]*float64{models.SubgroupWhite: models.Float(400)},
	},
	{
		EndYear:      2019,
		DistrictID:   "043752",
		BuildingID:   "012345",
		DistrictName: "Columbus City",
		BuildingName: "Main Elementary",
		EntityType:   models.EntityBuilding,
		Total:        models.Float(200),
	},
}

func TestWriteRecords_Formats(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		opts  WriteOptions
		check func(t *testing.T, data string)
	}{
		{
			name: "pretty json",
			opts: WriteOptions{Format: FormatJSON, Pretty: true},
			check: func(t *testing.T, data string) {
				if !strings.HasPrefix(data, "[\n  {\n") {
					t.Errorf("pretty JSON starts %q", data[:10])
				}
			},
		},
		{
			name: "compact json",
			opts: WriteOptions{Format: FormatJSON},
			check: func(t *testing.T, data string) {
				if strings.Count(data, "\n") != 1 {
					t.Errorf("compact JSON has %d lines, want 1", strings.Count(data, "\n"))
				}
			},
		},
		{
			name: "jsonl",
			opts: WriteOptions{Format: FormatJSONL},
			check: func(t *testing.T, data string) {
				if strings.Count(data, "\n") != 2 || !strings.HasPrefix(data, "{") {
					t.Errorf("JSONL = %q, want one object per line", data)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "out", strings.ReplaceAll(tt.name, " ", "_"))

			if err := WriteRecords(path, wideRecords, tt.opts); err != nil {
				t.Fatalf("WriteRecords() error = %v", err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}

			tt.check(t, string(data))

			got, err := ReadWide(path)
			if err != nil {
				t.Fatalf("ReadWide() error = %v", err)
			}

			if diff := cmp.Diff(wideRecords, got); diff != "" {
				t.Errorf("ReadWide() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteRecords_Backup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enr.json")

	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteRecords(path, wideRecords[:1], WriteOptions{Format: FormatJSON, Backup: true}); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}

	old, err := os.ReadFile(path + ".bak")
	if err != nil || string(old) != "old" {
		t.Errorf("backup = %q, %v; want %q", old, err, "old")
	}
}

func TestWriteRecords_EmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")

	if err := WriteRecords[models.ClassifiedRecord](path, nil, WriteOptions{}); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "[]\n" {
		t.Errorf("empty output = %q, want %q", data, "[]\n")
	}
}

func TestWriteRecords_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")

	err := WriteRecords(path, wideRecords, WriteOptions{Format: "csv"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("WriteRecords() error = %v, want ErrUnsupportedFormat", err)
	}

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("file written for unsupported format")
	}
}

func TestDecodeWide_Errors(t *testing.T) {
	if got, err := DecodeWide([]byte("  \n")); err != nil || len(got) != 0 {
		t.Errorf("DecodeWide(blank) = %v, %v", got, err)
	}

	_, err := DecodeWide([]byte("{\"end_year\":2019}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("DecodeWide() error = %v, want line 2", err)
	}
}

func TestTable(t *testing.T) {
	got := Table(
		[]string{"Field", "Column"},
		[][]string{{"total", "Total Enrollment"}, {"county", ""}},
	)

	want := "| Field  | Column           |\n" +
		"| ------ | ---------------- |\n" +
		"| total  | Total Enrollment |\n" +
		"| county |                  |\n"

	if got != want {
		t.Errorf("Table() =\n%s\nwant\n%s", got, want)
	}
}

func TestTable_WideRunes(t *testing.T) {
	got := Table([]string{"名前", "N"}, [][]string{{"東京", "1"}, {"Ohio", "22"}})

	want := "| 名前 | N   |\n" +
		"| ---- | --- |\n" +
		"| 東京 | 1   |\n" +
		"| Ohio | 22  |\n"

	if got != want {
		t.Errorf("Table() =\n%s\nwant\n%s", got, want)
	}
}

func TestSummaryTable(t *testing.T) {
	got := SummaryTable([]normalizer.Report{
		{EndYear: 2019, Era: schema.EraModern, RowsRead: 200, RowsExcluded: 5, RecordsEmitted: 4000, Source: "a.csv"},
		{EndYear: 2008, Era: schema.EraLegacy, RowsRead: 10, RecordsEmitted: 90, Source: "b.csv"},
	})

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("SummaryTable() has %d lines, want 4:\n%s", len(lines), got)
	}

	for _, line := range lines[1:] {
		if runewidth.StringWidth(line) != runewidth.StringWidth(lines[0]) {
			t.Errorf("misaligned line %q", line)
		}
	}

	if !strings.Contains(lines[2], "| 2019 | modern |") || !strings.Contains(lines[2], " 2.5 ") {
		t.Errorf("2019 row = %q", lines[2])
	}
}

func TestColumnTable(t *testing.T) {
	table, err := schema.Default()
	if err != nil {
		t.Fatal(err)
	}

	b, err := extract.New(table).Bind([]string{"District IRN", "Total Enrollment"}, 2019)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	got := ColumnTable(b)

	if !strings.HasPrefix(got, "2019 (modern era)\n\n| Field") {
		t.Errorf("ColumnTable() header = %q", got[:30])
	}

	for _, want := range []string{"| district_id ", " District IRN ", "| total ", " Total Enrollment "} {
		if !strings.Contains(got, want) {
			t.Errorf("ColumnTable() missing %q:\n%s", want, got)
		}
	}
}
