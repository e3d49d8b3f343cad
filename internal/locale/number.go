// Package locale converts between locale formatted numbers ("1.234,5") and canonical values.
package locale

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/meter-tracker/internal/common"
)

const (
	thousandsSeparator = "."
	decimalSeparator   = ","
)

var reCanonical = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// ParseNumber converts a locale formatted string into a float64.
// Every "." is dropped as a thousands separator and the first "," becomes the decimal point.
// Anything that is not a plain numeric literal afterwards is a parse error.
func ParseNumber(s string) (float64, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) {
		return 0, common.NewAppError(common.ErrParse, fmt.Sprintf("locale number %q out of range", s), nil)
	}
	return f, nil
}

// ParseDecimal is ParseNumber without the float conversion
func ParseDecimal(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, thousandsSeparator, "")
	cleaned = strings.Replace(cleaned, decimalSeparator, ".", 1)

	if !reCanonical.MatchString(cleaned) {
		return decimal.Zero, common.NewAppError(common.ErrParse, fmt.Sprintf("invalid locale number %q", s), nil)
	}
	if strings.HasSuffix(cleaned, ".") {
		cleaned += "0"
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, common.NewAppError(common.ErrParse, fmt.Sprintf("invalid locale number %q", s), err)
	}
	return d, nil
}

// FormatNumber renders v with grouped thousands and exactly places decimals, e.g. 1234.5 -> "1.234,50"
func FormatNumber(v float64, places int) string {
	if places < 0 {
		places = 0
	}
	fixed := decimal.NewFromFloat(v).StringFixed(int32(places))

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(thousandsSeparator)
		}
		b.WriteRune(r)
	}
	if fracPart != "" {
		b.WriteString(decimalSeparator)
		b.WriteString(fracPart)
	}
	return b.String()
}

// FromCanonical rewrites a dot-decimal literal such as a JSON number ("12345.6") into locale text ("12345,6")
func FromCanonical(s string) string {
	return strings.Replace(strings.TrimSpace(s), ".", decimalSeparator, 1)
}
