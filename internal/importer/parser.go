package importer

import (
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-service/internal/models"
)

// BarcodePrefix starts every generated barcode
const BarcodePrefix = "PH"

var (
	nonNumericChars = regexp.MustCompile(`[^0-9.\-]`)
	leadingNumber   = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)
)

// Parser turns raw sheet rows into typed import rows using a header index
type Parser struct {
	index    FieldIndex
	now      func() time.Time
	randIntN func(int) int
}

// ParserOption customizes a Parser
type ParserOption func(*Parser)

// WithClock sets the time source used for generated barcodes
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) { p.now = now }
}

// WithRand sets the random source used for generated barcodes
func WithRand(randIntN func(int) int) ParserOption {
	return func(p *Parser) { p.randIntN = randIntN }
}

func NewParser(index FieldIndex, opts ...ParserOption) *Parser {
	p := &Parser{
		index:    index,
		now:      time.Now,
		randIntN: rand.IntN,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse converts one raw row into an ImportRow. Errors are left empty;
// run Validate on the result.
func (p *Parser) Parse(raw RawRow) models.ImportRow {
	row := models.ImportRow{
		RowNumber:            raw.Line,
		Name:                 p.text(raw, FieldName),
		GenericName:          p.text(raw, FieldGenericName),
		Category:             p.text(raw, FieldCategory),
		DosageForm:           p.text(raw, FieldDosageForm),
		Strength:             p.text(raw, FieldStrength),
		Manufacturer:         p.text(raw, FieldManufacturer),
		Quantity:             ParseInt(p.cell(raw, FieldQuantity)),
		Unit:                 p.text(raw, FieldUnit),
		CostPrice:            ParseDecimal(p.cell(raw, FieldCostPrice)),
		SellingPrice:         ParseDecimal(p.cell(raw, FieldSellingPrice)),
		ReorderLevel:         models.DefaultReorderLevel,
		BatchNumber:          p.text(raw, FieldBatchNumber),
		ExpiryDate:           CoerceDate(p.cell(raw, FieldExpiryDate)),
		ManufactureDate:      CoerceDate(p.cell(raw, FieldManufactureDate)),
		Barcode:              p.text(raw, FieldBarcode),
		Location:             p.text(raw, FieldLocation),
		Supplier:             p.text(raw, FieldSupplier),
		Description:          p.text(raw, FieldDescription),
		PrescriptionRequired: ParseBool(p.cell(raw, FieldPrescriptionRequired)),
		Errors:               []string{},
	}

	if reorder := ParseInt(p.cell(raw, FieldReorderLevel)); reorder != nil {
		row.ReorderLevel = *reorder
	}
	if row.Unit == "" {
		row.Unit = models.DefaultUnit
	}
	if row.Barcode == "" {
		row.Barcode = p.GenerateBarcode()
	}
	return row
}

// GenerateBarcode returns the prefix, today's YYMMDD and five random digits
func (p *Parser) GenerateBarcode() string {
	return fmt.Sprintf("%s%s%05d", BarcodePrefix, p.now().Format("060102"), p.randIntN(100000))
}

func (p *Parser) cell(raw RawRow, f Field) Cell {
	i, ok := p.index.Column(f)
	if !ok {
		return EmptyCell()
	}
	return raw.At(i)
}

func (p *Parser) text(raw RawRow, f Field) string {
	return strings.TrimSpace(p.cell(raw, f).String())
}

// numericPrefix strips everything but digits, dots and minus signs and
// returns the leading number that remains.
func numericPrefix(s string) (string, bool) {
	cleaned := nonNumericChars.ReplaceAllString(s, "")
	m := leadingNumber.FindString(cleaned)
	return m, m != ""
}

// ParseDecimal reads a price cell. Unparseable values give nil, not zero.
func ParseDecimal(c Cell) *decimal.Decimal {
	switch c.Kind {
	case CellNumber:
		d := decimal.NewFromFloat(c.Number)
		return &d
	case CellText:
		m, ok := numericPrefix(c.Text)
		if !ok {
			return nil
		}
		d, err := decimal.NewFromString(m)
		if err != nil {
			return nil
		}
		return &d
	}
	return nil
}

// ParseInt reads an integer cell, truncating any fraction toward zero.
// Unparseable values and values outside the int range give nil.
func ParseInt(c Cell) *int {
	var f float64
	switch c.Kind {
	case CellNumber:
		f = c.Number
	case CellText:
		d := ParseDecimal(c)
		if d == nil {
			return nil
		}
		f = d.InexactFloat64()
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt || f < math.MinInt {
		return nil
	}
	n := int(math.Trunc(f))
	return &n
}

// ParseBool is true only for true, yes or 1 (any case)
func ParseBool(c Cell) bool {
	switch strings.ToLower(strings.TrimSpace(c.String())) {
	case "true", "yes", "1":
		return true
	}
	return false
}
