// Package export serializes history snapshots for download.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/okian/ridesafe/internal/domain/model"
)

// Format names accepted by Write.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Write encodes readings to w in the given format.
func Write(w io.Writer, format string, readings []model.Reading) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, readings)
	case FormatCSV:
		return WriteCSV(w, readings)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteJSON writes readings as a JSON array. An empty history is "[]".
func WriteJSON(w io.Writer, readings []model.Reading) error {
	if readings == nil {
		readings = []model.Reading{}
	}
	if err := json.NewEncoder(w).Encode(readings); err != nil {
		return fmt.Errorf("json export: %w", err)
	}
	return nil
}

// WriteCSV writes a header row made of the first reading's keys, then one
// row per reading in that column order. Columns a later reading lacks are
// left empty and keys the first reading lacks are not exported.
func WriteCSV(w io.Writer, readings []model.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	first := readings[0].Fields()
	header := make([]string, len(first))
	for i, f := range first {
		header[i] = f.Key
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv write header: %w", err)
	}

	row := make([]string, len(header))
	for _, r := range readings {
		values := make(map[string]string, len(header))
		for _, f := range r.Fields() {
			values[f.Key] = f.Value
		}
		for i, key := range header {
			row[i] = values[key]
		}
		_ = cw.Write(row) // error is buffered; checked on Flush
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	return bw.Flush()
}
