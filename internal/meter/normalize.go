// Package meter holds the meter type catalog and reconciles OCR digit strings against it.
package meter

import (
	"strings"
)

// Layout is what Normalize needs to know about a meter
type Layout interface {
	Digits() int
	Decimals() int
}

func (p Profile) Digits() int   { return p.DigitCount }
func (p Profile) Decimals() int { return p.DecimalPlaces }

// Normalize forces raw OCR text into the fixed-width shape of a meter display.
//
// Non-digits are dropped, the digit sequence is cut to its last Digits() digits or
// left-padded with zeros, and the locale decimal separator is placed Decimals() digits
// from the end. The value may still be wrong, but the shape is always valid.
func Normalize(raw string, layout Layout) string {
	width := layout.Digits()
	places := layout.Decimals()
	if width <= 0 {
		return ""
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// leading noise is more common than trailing noise on meter displays
	if len(digits) > width {
		digits = digits[len(digits)-width:]
	}
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}

	if places <= 0 {
		return digits
	}
	if places > width {
		places = width
	}
	split := width - places
	return digits[:split] + "," + digits[split:]
}
