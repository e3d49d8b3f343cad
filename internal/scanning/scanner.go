package scanning

import "context"

// Sentinel values used when a field cannot be extracted
const (
	Unknown         = "unknown"
	FallbackReading = "0,0"
	FallbackUnit    = "kWh"
)

// OCRValue is a single extracted field with the backend's confidence in [0,1]
type OCRValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// IsUnknown reports whether the field holds the unknown sentinel
func (v OCRValue) IsUnknown() bool {
	return v.Value == Unknown
}

// TariffInfo splits a dual-rate reading into high (HT) and low (NT) tariff registers
type TariffInfo struct {
	HT OCRValue `json:"HT"`
	NT OCRValue `json:"NT"`
}

// Extraction is the interpreted content of one meter photograph.
// CurrentReading holds locale formatted text such as "12.345,6".
type Extraction struct {
	MeterNumber    OCRValue   `json:"meter_number"`
	CurrentReading OCRValue   `json:"current_reading"`
	Unit           OCRValue   `json:"unit"`
	TariffInfo     TariffInfo `json:"tariff_info"`
	AdditionalInfo OCRValue   `json:"additional_info"`
}

// Scanner defines the interface for meter photograph interpretation
type Scanner interface {
	// ScanMeter sends the image to a vision backend and returns the validated extraction
	ScanMeter(ctx context.Context, imageData []byte, contentType string) (*Extraction, error)
	// Close closes the scanner and releases resources
	Close() error
}
