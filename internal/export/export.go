// Package export renders the dataset for download.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/tabular"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a case-insensitive format name. Empty means csv.
func ParseFormat(raw string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatCSV, true
	case FormatCSV, FormatXLSX, FormatParquet:
		return f, true
	}
	return "", false
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv"
	}
}

func (f Format) Filename() string {
	return "patients." + string(f)
}

// Write renders ds in the given format.
func Write(w io.Writer, f Format, ds patient.Dataset) error {
	switch f {
	case FormatCSV:
		return tabular.Encode(w, ds)
	case FormatXLSX:
		return writeXLSX(w, ds)
	case FormatParquet:
		return writeParquet(w, ds)
	}
	return fmt.Errorf("unknown export format %q", f)
}
