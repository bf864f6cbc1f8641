package report

import (
	"errors"
	"fmt"

	"github.com/mattn/go-runewidth"
)

// ErrRowWidthMismatch is returned when a data row does not line up with the header.
var ErrRowWidthMismatch = errors.New("data row width does not match header width")

// HeaderRowCount is the number of rows above the data: title, subtitle and
// the two header levels.
const HeaderRowCount = 4

const (
	minColumnWidth     = 8
	maxColumnWidth     = 60
	columnWidthPadding = 5
)

// HeaderGroup is one top-level header cell. A group without Columns that is
// not Dynamic is a single fixed column merged down over both header rows.
// A group with Columns is merged across them. A Dynamic group with no
// Columns takes up no width at all.
type HeaderGroup struct {
	Title   string
	Columns []string
	Dynamic bool
}

func (g HeaderGroup) fixed() bool {
	return len(g.Columns) == 0 && !g.Dynamic
}

func (g HeaderGroup) width() int {
	if g.fixed() {
		return 1
	}
	return len(g.Columns)
}

// MergeRange is an inclusive, zero-based cell rectangle.
type MergeRange struct {
	FirstRow int
	FirstCol int
	LastRow  int
	LastCol  int
}

// Table is a rectangular report: title, subtitle, two header rows and data.
type Table struct {
	Title    string
	Subtitle string
	Groups   []HeaderGroup
	Rows     [][]string
}

// NewTable validates that every data row is exactly as wide as the header.
func NewTable(title, subtitle string, groups []HeaderGroup, rows [][]string) (*Table, error) {
	t := &Table{Title: title, Subtitle: subtitle, Groups: groups, Rows: rows}
	width := t.Width()
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d", ErrRowWidthMismatch, i+1, len(row), width)
		}
	}
	return t, nil
}

// Width is the number of columns in the deepest header row.
func (t *Table) Width() int {
	w := 0
	for _, g := range t.Groups {
		w += g.width()
	}
	return w
}

// HeaderRows returns the two header levels, each Width() cells wide.
func (t *Table) HeaderRows() ([]string, []string) {
	top := make([]string, 0, t.Width())
	sub := make([]string, 0, t.Width())
	for _, g := range t.Groups {
		if g.fixed() {
			top = append(top, g.Title)
			sub = append(sub, "")
			continue
		}
		for i, col := range g.Columns {
			if i == 0 {
				top = append(top, g.Title)
			} else {
				top = append(top, "")
			}
			sub = append(sub, col)
		}
	}
	return top, sub
}

// Records returns every row of the table, headers included, all padded to Width().
func (t *Table) Records() [][]string {
	width := t.Width()
	records := make([][]string, 0, HeaderRowCount+len(t.Rows))
	records = append(records, padRow(t.Title, width), padRow(t.Subtitle, width))
	top, sub := t.HeaderRows()
	records = append(records, top, sub)
	records = append(records, t.Rows...)
	return records
}

func padRow(first string, width int) []string {
	if width < 1 {
		width = 1
	}
	row := make([]string, width)
	row[0] = first
	return row
}

// Merges lists the merged cell ranges of the header block.
func (t *Table) Merges() []MergeRange {
	width := t.Width()
	var merges []MergeRange
	if width > 1 {
		merges = append(merges,
			MergeRange{FirstRow: 0, FirstCol: 0, LastRow: 0, LastCol: width - 1},
			MergeRange{FirstRow: 1, FirstCol: 0, LastRow: 1, LastCol: width - 1},
		)
	}

	col := 0
	for _, g := range t.Groups {
		w := g.width()
		switch {
		case g.fixed():
			merges = append(merges, MergeRange{FirstRow: 2, FirstCol: col, LastRow: 3, LastCol: col})
		case w > 1:
			merges = append(merges, MergeRange{FirstRow: 2, FirstCol: col, LastRow: 2, LastCol: col + w - 1})
		}
		col += w
	}
	return merges
}

// ColumnWidths returns a display width per column: the widest header or data
// cell plus padding, clamped to a readable range. Title, subtitle and
// multi-column group titles are ignored since they span several columns.
func (t *Table) ColumnWidths() []float64 {
	width := t.Width()
	widest := make([]int, width)

	col := 0
	for _, g := range t.Groups {
		if g.fixed() {
			widest[col] = runewidth.StringWidth(g.Title)
		} else {
			for i, name := range g.Columns {
				widest[col+i] = runewidth.StringWidth(name)
			}
			if len(g.Columns) == 1 {
				widest[col] = max(widest[col], runewidth.StringWidth(g.Title))
			}
		}
		col += g.width()
	}

	for _, row := range t.Rows {
		for i, cell := range row {
			widest[i] = max(widest[i], runewidth.StringWidth(cell))
		}
	}

	widths := make([]float64, width)
	for i, w := range widest {
		widths[i] = float64(min(max(w+columnWidthPadding, minColumnWidth), maxColumnWidth))
	}
	return widths
}
