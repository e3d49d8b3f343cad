package reading

import (
	"fmt"
	"strings"
	"time"
)

// Record is a persisted meter reading
type Record struct {
	MeterNumber    string    `json:"meter_number"`
	MeterType      string    `json:"meter_type,omitempty"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit"`
	Confidence     float64   `json:"confidence"`
	HT             *float64  `json:"HT,omitempty"`
	NT             *float64  `json:"NT,omitempty"`
	AdditionalInfo string    `json:"additional_info,omitempty"`
	CaptureID      string    `json:"capture_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// UtilityType identifies a price series
type UtilityType string

const (
	Electricity UtilityType = "electricity"
	Gas         UtilityType = "gas"
	Water       UtilityType = "water"
)

// ParseUtilityType validates s against the known utility types
func ParseUtilityType(s string) (UtilityType, error) {
	switch t := UtilityType(strings.ToLower(strings.TrimSpace(s))); t {
	case Electricity, Gas, Water:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown utility type %q", ErrInvalidInput, s)
	}
}

// UtilityPrice is a tariff valid from ValidFrom until superseded.
// BasePrice is per month, WorkPrice in cents per unit.
type UtilityPrice struct {
	BasePrice float64     `json:"basePrice"`
	WorkPrice float64     `json:"workPrice"`
	Provider  string      `json:"provider"`
	Type      UtilityType `json:"type"`
	ValidFrom time.Time   `json:"validFrom"`
}

// Validate checks the price before it is stored
func (p UtilityPrice) Validate() error {
	if _, err := ParseUtilityType(string(p.Type)); err != nil {
		return err
	}
	if p.BasePrice < 0 || p.WorkPrice < 0 {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidInput)
	}
	if p.ValidFrom.IsZero() {
		return fmt.Errorf("%w: validFrom is required", ErrInvalidInput)
	}
	return nil
}
