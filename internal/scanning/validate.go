package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zombor/meter-tracker/internal/locale"
)

// ValidateJSON decodes a JSON document and validates it
func ValidateJSON(data []byte) (Extraction, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Extraction{}, fmt.Errorf("decoding extraction: %w", err)
	}
	return Validate(raw)
}

// Validate coerces an untrusted decoded JSON value into a complete Extraction.
//
// Missing or malformed fields get their sentinel value with confidence 0. Only a
// root that is not an object is rejected.
func Validate(raw any) (Extraction, error) {
	root, ok := raw.(map[string]any)
	if !ok {
		return Extraction{}, fmt.Errorf("extraction must be a JSON object, got %T", raw)
	}

	tariff, _ := root["tariff_info"].(map[string]any)

	return Extraction{
		MeterNumber:    field(root, "meter_number", Unknown),
		CurrentReading: field(root, "current_reading", FallbackReading),
		Unit:           field(root, "unit", FallbackUnit),
		TariffInfo: TariffInfo{
			HT: field(tariff, "HT", Unknown),
			NT: field(tariff, "NT", Unknown),
		},
		AdditionalInfo: field(root, "additional_info", Unknown),
	}, nil
}

func field(parent map[string]any, key, fallback string) OCRValue {
	missing := OCRValue{Value: fallback, Confidence: 0}
	if parent == nil {
		return missing
	}
	obj, ok := parent[key].(map[string]any)
	if !ok {
		return missing
	}

	value, ok := fieldValue(obj["value"])
	if !ok {
		return missing
	}
	if value == Unknown {
		return OCRValue{Value: Unknown, Confidence: 0}
	}
	return OCRValue{Value: value, Confidence: confidence(obj["confidence"])}
}

// fieldValue returns string values trimmed; numbers become locale text
func fieldValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		if !strings.ContainsAny(t.String(), "eE") {
			return locale.FromCanonical(t.String()), true
		}
		f, err := t.Float64()
		if err != nil {
			return "", false
		}
		return numberValue(f)
	case float64:
		return numberValue(t)
	default:
		return "", false
	}
}

func numberValue(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return locale.FromCanonical(strconv.FormatFloat(f, 'f', -1, 64)), true
}

// confidence clamps to [0,1]; anything non-numeric is 0
func confidence(v any) float64 {
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		c = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		c = f
	default:
		return 0
	}
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
