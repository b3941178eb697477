package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither CSV nor Excel workbooks
	ErrUnsupportedFormat = errors.New("only CSV and XLSX files are supported")
	// ErrEmptyFile is returned when a file has no header row or no data rows
	ErrEmptyFile = errors.New("the file contains no data rows")
	// ErrUnreadableFile wraps CSV and workbook decoding failures
	ErrUnreadableFile = errors.New("the file could not be read")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadSheet reads the header and data rows of a CSV or Excel file.
// The format is chosen from the file name extension.
func ReadSheet(filename string, r io.Reader) (*Sheet, error) {
	var (
		sheet *Sheet
		err   error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		sheet, err = readCSV(r)
	case ".xlsx", ".xlsm":
		sheet, err = readXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if len(sheet.Header) == 0 || len(sheet.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return sheet, nil
}

func readCSV(r io.Reader) (*Sheet, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV header: %w", ErrUnreadableFile, err)
	}

	sheet := &Sheet{Header: trimAll(header)}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read CSV row: %w", ErrUnreadableFile, err)
		}
		line, _ := reader.FieldPos(0)

		cells := make([]Cell, len(record))
		for i, v := range record {
			cells[i] = TextCell(v)
		}
		if allEmpty(cells) {
			continue
		}
		sheet.Rows = append(sheet.Rows, RawRow{Line: line, Cells: cells})
	}
	return sheet, nil
}

func readXLSX(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open Excel file: %w", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet: %w", ErrUnreadableFile, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	sheet := &Sheet{Header: trimAll(rows[0])}
	for i, row := range rows[1:] {
		cells := make([]Cell, len(row))
		for j, v := range row {
			cells[j] = xlsxCell(v)
		}
		if allEmpty(cells) {
			continue
		}
		sheet.Rows = append(sheet.Rows, RawRow{Line: i + 2, Cells: cells})
	}
	return sheet, nil
}

// xlsxCell types a raw workbook value. Raw values of numeric and date
// cells are plain numbers, so those become Number cells.
func xlsxCell(v string) Cell {
	v = strings.TrimSpace(v)
	if v == "" {
		return EmptyCell()
	}
	// keep zero-padded codes such as barcodes as text
	if len(v) > 1 && v[0] == '0' && v[1] != '.' {
		return TextCell(v)
	}
	// float64 holds 15 digits exactly; longer codes such as SSCCs stay text
	if isLongDigitCode(v) {
		return TextCell(v)
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return NumberCell(n)
	}
	return TextCell(v)
}

func isLongDigitCode(v string) bool {
	if len(v) <= 15 {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func allEmpty(cells []Cell) bool {
	for _, c := range cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}
