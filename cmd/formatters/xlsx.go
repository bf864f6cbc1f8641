package formatters

import (
	"github.com/airframesio/report-archiver/cmd/report"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

// XLSXFormatter renders a workbook with merged header cells and explicit
// column widths.
type XLSXFormatter struct{}

// NewXLSXFormatter creates a new XLSX formatter
func NewXLSXFormatter() *XLSXFormatter {
	return &XLSXFormatter{}
}

// Format builds the workbook in memory and returns its bytes
func (f *XLSXFormatter) Format(table *report.Table) ([]byte, error) {
	book := excelize.NewFile()
	defer book.Close()

	for i, record := range table.Records() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, serializationError("resolve row cell", err)
		}
		values := make([]interface{}, len(record))
		for j, v := range record {
			values[j] = v
		}
		if err := book.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, serializationError("write row", err)
		}
	}

	for _, m := range table.Merges() {
		topLeft, err := excelize.CoordinatesToCellName(m.FirstCol+1, m.FirstRow+1)
		if err != nil {
			return nil, serializationError("resolve merge", err)
		}
		bottomRight, err := excelize.CoordinatesToCellName(m.LastCol+1, m.LastRow+1)
		if err != nil {
			return nil, serializationError("resolve merge", err)
		}
		if err := book.MergeCell(sheetName, topLeft, bottomRight); err != nil {
			return nil, serializationError("merge cells", err)
		}
	}

	for i, width := range table.ColumnWidths() {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, serializationError("resolve column", err)
		}
		if err := book.SetColWidth(sheetName, col, col, width); err != nil {
			return nil, serializationError("set column width", err)
		}
	}

	if err := applyHeaderStyles(book, table.Width()); err != nil {
		return nil, err
	}

	buffer, err := book.WriteToBuffer()
	if err != nil {
		return nil, serializationError("write workbook", err)
	}
	return buffer.Bytes(), nil
}

func applyHeaderStyles(book *excelize.File, width int) error {
	if width < 1 {
		width = 1
	}
	lastCol, err := excelize.ColumnNumberToName(width)
	if err != nil {
		return serializationError("resolve column", err)
	}

	center := &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}
	titleStyle, err := book.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: center,
	})
	if err != nil {
		return serializationError("create title style", err)
	}
	headerStyle, err := book.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: center,
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return serializationError("create header style", err)
	}

	if err := book.SetCellStyle(sheetName, "A1", lastCol+"2", titleStyle); err != nil {
		return serializationError("style title", err)
	}
	if err := book.SetCellStyle(sheetName, "A3", lastCol+"4", headerStyle); err != nil {
		return serializationError("style header", err)
	}
	return nil
}

// Extension returns the file extension for XLSX files
func (f *XLSXFormatter) Extension() string {
	return ".xlsx"
}

// MIMEType returns the MIME type for XLSX
func (f *XLSXFormatter) MIMEType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
