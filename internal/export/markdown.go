package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"ohenr/internal/extract"
	"ohenr/internal/normalizer"
)

// Table renders an aligned markdown table. Column widths are display
// widths, so district names with wide runes still line up.
func Table(header []string, rows [][]string) string {
	colCount := len(header)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	if colCount == 0 {
		return ""
	}

	colWidths := make([]int, colCount)

	measure := func(row []string) {
		for i := 0; i < len(row); i++ {
			if w := runewidth.StringWidth(row[i]); w > colWidths[i] {
				colWidths[i] = w
			}
		}
	}

	measure(header)

	for _, row := range rows {
		measure(row)
	}

	// separator needs at least "---"
	for i := range colWidths {
		if colWidths[i] < 3 {
			colWidths[i] = 3
		}
	}

	var sb strings.Builder

	writeRow := func(row []string) {
		sb.WriteString("|")

		for j := 0; j < colCount; j++ {
			content := ""
			if j < len(row) {
				content = row[j]
			}

			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(content, colWidths[j]))
			sb.WriteString(" |")
		}

		sb.WriteString("\n")
	}

	writeRow(header)

	sb.WriteString("|")

	for _, w := range colWidths {
		sb.WriteString(" ")
		sb.WriteString(strings.Repeat("-", w))
		sb.WriteString(" |")
	}

	sb.WriteString("\n")

	for _, row := range rows {
		writeRow(row)
	}

	return sb.String()
}

// SummaryTable renders one line per processed year.
func SummaryTable(reports []normalizer.Report) string {
	header := []string{"Year", "Era", "Rows", "Excluded", "Excluded %", "Records", "Source"}
	rows := make([][]string, 0, len(reports))

	for _, r := range reports {
		rows = append(rows, []string{
			strconv.Itoa(r.EndYear),
			string(r.Era),
			strconv.Itoa(r.RowsRead),
			strconv.Itoa(r.RowsExcluded),
			fmt.Sprintf("%.1f", r.ExclusionRatio()*100),
			strconv.Itoa(r.RecordsEmitted),
			r.Source,
		})
	}

	return Table(header, rows)
}

// ColumnTable renders which source column each canonical field resolved to.
func ColumnTable(b *extract.Binding) string {
	matches := b.Columns()
	rows := make([][]string, 0, len(matches))

	for _, m := range matches {
		rows = append(rows, []string{m.Field, m.Column})
	}

	return fmt.Sprintf("%d (%s era)\n\n%s", b.EndYear(), b.Era(), Table([]string{"Field", "Column"}, rows))
}
