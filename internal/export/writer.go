// Package export writes processed enrollment records and renders run summaries.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ohenr/internal/models"
)

// ErrUnsupportedFormat is returned for an output format other than json or jsonl.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Output formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// WriteOptions controls how records are written.
type WriteOptions struct {
	Format string
	Pretty bool
	Backup bool
}

// WriteRecords writes records to path as a JSON array or as JSON lines.
// An existing file is renamed to path+".bak" first when opts.Backup is set.
func WriteRecords[T any](path string, records []T, opts WriteOptions) error {
	var buf bytes.Buffer

	if err := Encode(&buf, records, opts); err != nil {
		return err
	}

	if opts.Backup {
		if _, err := os.Stat(path); err == nil {
			if err := os.Rename(path, path+".bak"); err != nil {
				return fmt.Errorf("failed to back up %s: %w", path, err)
			}
		}
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Encode writes records to w in the format named by opts.
func Encode[T any](w io.Writer, records []T, opts WriteOptions) error {
	switch opts.Format {
	case FormatJSON, "":
		if records == nil {
			records = []T{}
		}

		var (
			data []byte
			err  error
		)

		if opts.Pretty {
			data, err = json.MarshalIndent(records, "", "  ")
		} else {
			data, err = json.Marshal(records)
		}

		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}

		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write JSON: %w", err)
		}

		return nil
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for i := range records {
			if err := enc.Encode(records[i]); err != nil {
				return fmt.Errorf("failed to write record %d: %w", i, err)
			}
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
}

// ReadWide reads wide records written by WriteRecords in either format.
func ReadWide(path string) ([]models.WideRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return DecodeWide(data)
}

// DecodeWide parses a JSON array or JSON lines of wide records.
func DecodeWide(data []byte) ([]models.WideRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []models.WideRecord{}, nil
	}

	if trimmed[0] == '[' {
		var records []models.WideRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}

		return records, nil
	}

	var records []models.WideRecord

	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var rec models.WideRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse line %d: %w", line, err)
		}

		records = append(records, rec)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan JSON lines: %w", err)
	}

	return records, nil
}
