package formatters

import (
	"errors"
	"fmt"
	"strings"

	"github.com/airframesio/report-archiver/cmd/report"
)

// Format type constants
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var (
	// ErrUnsupportedFormat is returned when an unknown output format is requested
	ErrUnsupportedFormat = errors.New("unsupported output format")
	// ErrSerialization wraps every failure to render a table
	ErrSerialization = errors.New("failed to serialize report")
)

// Formatter defines the interface for report serializers
type Formatter interface {
	// Format renders the whole table into memory. On error no bytes are returned.
	Format(table *report.Table) ([]byte, error)

	// Extension returns the file extension for this format (e.g., ".csv", ".xlsx")
	Extension() string

	// MIMEType returns the MIME type for this format
	MIMEType() string
}

// GetFormatter returns the formatter for a format name
func GetFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return NewCSVFormatter(), nil
	case FormatXLSX:
		return NewXLSXFormatter(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// ExtensionForContentType picks the file extension for a response content
// type. Anything that is not CSV is treated as a workbook.
func ExtensionForContentType(contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "text/csv") {
		return ".csv"
	}
	return ".xlsx"
}

func serializationError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerialization, step, err)
}
