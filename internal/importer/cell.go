package importer

import (
	"strconv"
	"strings"
	"time"
)

// CellKind tags the variant held by a Cell
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellText
	CellDate
)

// Cell is a single spreadsheet value as read from the source file.
// Only the field matching Kind is meaningful.
type Cell struct {
	Kind   CellKind
	Number float64
	Text   string
	Date   time.Time
}

func EmptyCell() Cell { return Cell{Kind: CellEmpty} }

func NumberCell(n float64) Cell { return Cell{Kind: CellNumber, Number: n} }

func DateCell(t time.Time) Cell { return Cell{Kind: CellDate, Date: t} }

// TextCell trims s and returns an empty cell when nothing is left
func TextCell(s string) Cell {
	s = strings.TrimSpace(s)
	if s == "" {
		return EmptyCell()
	}
	return Cell{Kind: CellText, Text: s}
}

// IsEmpty reports whether the cell holds no value
func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty
}

// String renders the cell the way it would read in a spreadsheet
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellText:
		return c.Text
	case CellDate:
		return c.Date.Format("2006-01-02")
	default:
		return ""
	}
}

// RawRow is one data row of a sheet with its 1-based source line
type RawRow struct {
	Line  int
	Cells []Cell
}

// At returns the cell at column i, or an empty cell if the row is short
func (r RawRow) At(i int) Cell {
	if i < 0 || i >= len(r.Cells) {
		return EmptyCell()
	}
	return r.Cells[i]
}

// Sheet is the header row plus the non-empty data rows of an input file
type Sheet struct {
	Header []string
	Rows   []RawRow
}
