package formatters

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/airframesio/report-archiver/cmd/report"
	"github.com/xuri/excelize/v2"
)

func sampleTable(t *testing.T, categories int, comment string) *report.Table {
	t.Helper()
	names := make([]string, categories)
	for i := range names {
		names[i] = "หัวข้อ"
	}
	groups := []report.HeaderGroup{
		{Title: "วัน/เดือน/ปี"},
		{Title: "คะแนนแต่ละหัวข้อประเมิน", Columns: names, Dynamic: true},
		{Title: "ข้อเสนอแนะ"},
	}
	row := []string{"01/01/2567"}
	for i := 0; i < categories; i++ {
		row = append(row, "5")
	}
	row = append(row, comment)

	table, err := report.NewTable("รายงาน", "ช่วงวันที่", groups, [][]string{row})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}
	return table
}

func TestCSVRoundTrip(t *testing.T) {
	comment := "สะอาด, แต่ \"กลิ่น\" ยังมี\nบรรทัดที่สอง"
	table := sampleTable(t, 2, comment)

	data, err := NewCSVFormatter().Format(table)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte(utf8BOM)) {
		t.Fatal("CSV output must start with a byte-order mark")
	}

	reader, err := NewCSVReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewCSVReader failed: %v", err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !reflect.DeepEqual(records, table.Records()) {
		t.Fatalf("round trip mismatch:\n got %q\nwant %q", records, table.Records())
	}
	last := records[len(records)-1]
	if last[len(last)-1] != comment {
		t.Fatalf("comment changed: %q", last[len(last)-1])
	}
	if records[0][0] != "รายงาน" {
		t.Fatalf("BOM leaked into first cell: %q", records[0][0])
	}
}

func TestCSVQuoting(t *testing.T) {
	table := sampleTable(t, 0, `a"b`)
	data, err := NewCSVFormatter().Format(table)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !strings.Contains(string(data), `"a""b"`) {
		t.Fatalf("internal quotes should be doubled: %s", data)
	}
}

func TestXLSXLayout(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		table := sampleTable(t, n, "ok")

		data, err := NewXLSXFormatter().Format(table)
		if err != nil {
			t.Fatalf("n=%d: Format failed: %v", n, err)
		}

		book, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("n=%d: output is not a workbook: %v", n, err)
		}
		merges, err := book.GetMergeCells(sheetName)
		if err != nil {
			t.Fatalf("n=%d: GetMergeCells failed: %v", n, err)
		}
		if len(merges) != len(table.Merges()) {
			t.Fatalf("n=%d: got %d merges, want %d", n, len(merges), len(table.Merges()))
		}
		book.Close()

		rows, err := ReadXLSX(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("n=%d: ReadXLSX failed: %v", n, err)
		}
		data4 := rows[report.HeaderRowCount]
		if data4[len(data4)-1] != "ok" || len(data4) != table.Width() {
			t.Fatalf("n=%d: unexpected data row %v", n, data4)
		}
	}
}

func TestGetFormatter(t *testing.T) {
	f, err := GetFormatter("XLSX")
	if err != nil || f.Extension() != ".xlsx" {
		t.Fatalf("unexpected formatter %v, %v", f, err)
	}
	if _, err := GetFormatter("parquet"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if ExtensionForContentType("text/csv; charset=utf-8") != ".csv" {
		t.Fatal("csv content type should map to .csv")
	}
	if ExtensionForContentType(NewXLSXFormatter().MIMEType()) != ".xlsx" {
		t.Fatal("workbook content type should map to .xlsx")
	}
}
