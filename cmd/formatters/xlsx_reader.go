package formatters

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyWorkbook is returned when a workbook has no sheets
var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// ReadXLSX returns the rows of the first sheet. Trailing empty cells are
// trimmed, so rows may be ragged.
func ReadXLSX(r io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// ReadRecords reads an artifact back according to its extension
func ReadRecords(r io.Reader, extension string) ([][]string, error) {
	switch extension {
	case ".csv":
		reader, err := NewCSVReader(r)
		if err != nil {
			return nil, err
		}
		return reader.ReadAll()
	case ".xlsx":
		return ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, extension)
	}
}
