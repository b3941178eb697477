package importer

import (
	"math"
	"regexp"
	"strings"
	"time"

	"pharmacy-service/internal/models"
)

// SerialEpoch is day zero of spreadsheet serial dates
var SerialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var (
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateSeparators = regexp.MustCompile(`[/.\-]`)
)

// SerialToDate converts a spreadsheet serial day number to a UTC time.
// Whole days go through AddDate so serials up to 9999-12-31 do not
// overflow a Duration.
func SerialToDate(serial float64) time.Time {
	days := math.Floor(serial)
	ms := math.Round((serial - days) * 86400000)
	return SerialEpoch.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond)
}

// CoerceDate normalizes a cell to a YYYY-MM-DD string where it can.
// Three-part strings are read year-first when the first part has four
// digits, otherwise day-first when the last part has four digits.
// Anything else is returned as-is and left for validation to reject.
func CoerceDate(c Cell) string {
	switch c.Kind {
	case CellEmpty:
		return ""
	case CellNumber:
		return SerialToDate(c.Number).Format(models.DateLayout)
	case CellDate:
		return c.Date.UTC().Format(models.DateLayout)
	}

	s := strings.TrimSpace(c.Text)
	if isoDatePattern.MatchString(s) {
		return s
	}

	parts := dateSeparators.Split(s, -1)
	if len(parts) != 3 {
		return s
	}
	switch {
	case len(parts[0]) == 4:
		return parts[0] + "-" + pad2(parts[1]) + "-" + pad2(parts[2])
	case len(parts[2]) == 4:
		// TODO: month-first files (03/04/2024 meaning March 4) are read as 3 April; needs a per-import locale option.
		return parts[2] + "-" + pad2(parts[1]) + "-" + pad2(parts[0])
	}
	return s
}

// IsValidDate reports whether s is a real calendar date in YYYY-MM-DD form
func IsValidDate(s string) bool {
	if !isoDatePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(models.DateLayout, s)
	return err == nil
}

func pad2(s string) string {
	if len(s) < 2 {
		return strings.Repeat("0", 2-len(s)) + s
	}
	return s
}
