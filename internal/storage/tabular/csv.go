// Package tabular reads and writes the dataset as a header-first CSV table.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
)

// Decode reads a CSV table whose first row names the columns. Columns are
// matched by name, so re-ordered or partial headers still load; unknown
// columns are ignored. Empty input is an empty dataset.
func Decode(r io.Reader) (patient.Dataset, error) {
	br := bufio.NewReader(r)

	// Skip UTF-8 BOM if present
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return patient.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if patient.IsKnown(name) {
			colIdx[name] = i
		}
	}
	if _, ok := colIdx[patient.ColumnID]; !ok {
		return nil, fmt.Errorf("header has no %s column", patient.ColumnID)
	}

	ds := patient.Dataset{}
	for rowNum := 2; ; rowNum++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", rowNum, err)
		}
		if isBlank(row) {
			continue
		}

		values := make(map[string]string, len(colIdx))
		for col, i := range colIdx {
			if i < len(row) {
				values[col] = row[i]
			}
		}
		ds = append(ds, patient.NewRecord(values))
	}

	return ds, nil
}

// Encode writes the header row followed by every record in order.
func Encode(w io.Writer, ds patient.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(patient.Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range ds {
		if err := cw.Write(r.Values()); err != nil {
			return fmt.Errorf("writing record %s: %w", r.ID(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var bufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64<<10))
	},
}

// Marshal is Encode into a byte slice. Remote backends call it on every
// append, so the scratch buffer is pooled.
func Marshal(ds patient.Dataset) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if err := Encode(buf, ds); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// EncodeRow writes r laid out for header. Header columns outside the
// schema are left empty.
func EncodeRow(w io.Writer, header []string, r patient.Record) error {
	row := make([]string, len(header))
	for i, h := range header {
		row[i] = r[strings.TrimSpace(h)]
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
