package formatters

import (
	"bytes"
	"encoding/csv"

	"github.com/airframesio/report-archiver/cmd/report"
)

// utf8BOM lets spreadsheet apps detect UTF-8 and show Thai text correctly.
const utf8BOM = "\uFEFF"

// CSVFormatter handles CSV format output
type CSVFormatter struct{}

// NewCSVFormatter creates a new CSV formatter
func NewCSVFormatter() *CSVFormatter {
	return &CSVFormatter{}
}

// Format writes the BOM followed by every table record
func (f *CSVFormatter) Format(table *report.Table) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteString(utf8BOM)

	writer := csv.NewWriter(&buffer)
	if err := writer.WriteAll(table.Records()); err != nil {
		return nil, serializationError("write CSV records", err)
	}

	return buffer.Bytes(), nil
}

// Extension returns the file extension for CSV files
func (f *CSVFormatter) Extension() string {
	return ".csv"
}

// MIMEType returns the MIME type for CSV
func (f *CSVFormatter) MIMEType() string {
	return "text/csv; charset=utf-8"
}
