package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ohenr/internal/models"
)

// ErrEmptyGrid is returned when a file has no header row.
var ErrEmptyGrid = errors.New("no header row")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// delimiters are the separators ReadGrid sniffs for, in tie-break order.
var delimiters = []rune{',', '\t', ';', '|'}

// ReadGrid parses delimited text into a grid. The first skipRows lines are
// banner rows and are dropped; the next line is the header and decides the
// delimiter. Blank rows are skipped and empty cells become nil.
func ReadGrid(r io.Reader, skipRows int) (models.Grid, error) {
	br := bufio.NewReader(r)

	for i := 0; i < skipRows; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return models.Grid{}, ErrEmptyGrid
			}

			return models.Grid{}, fmt.Errorf("failed to skip banner rows: %w", err)
		}
	}

	header, err := br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return models.Grid{}, fmt.Errorf("failed to read header: %w", err)
	}

	header = bytes.TrimPrefix(header, utf8BOM)
	if len(bytes.TrimSpace(header)) == 0 {
		return models.Grid{}, ErrEmptyGrid
	}

	cr := csv.NewReader(io.MultiReader(bytes.NewReader(header), br))
	cr.Comma = sniffDelimiter(string(header))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return models.Grid{}, fmt.Errorf("failed to parse delimited text: %w", err)
	}

	if len(records) == 0 {
		return models.Grid{}, ErrEmptyGrid
	}

	columns := headerNames(records[0])

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}

		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}

		rows = append(rows, rec)
	}

	return models.NewGrid(columns, rows), nil
}

func sniffDelimiter(line string) rune {
	best, bestCount := ',', 0

	for _, d := range delimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}

	return best
}

// headerNames trims column names, names blank ones by position and
// suffixes repeats so every column is addressable.
func headerNames(raw []string) []string {
	columns := make([]string, len(raw))
	seen := make(map[string]int, len(raw))

	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}

		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n)
		} else {
			seen[name] = 1
		}

		columns[i] = name
	}

	return columns
}

func isBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}

	return true
}
