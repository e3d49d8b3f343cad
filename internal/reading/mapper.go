package reading

import (
	"fmt"
	"time"

	"github.com/zombor/meter-tracker/internal/common"
	"github.com/zombor/meter-tracker/internal/locale"
	"github.com/zombor/meter-tracker/internal/scanning"
)

// ToRecord converts a validated extraction into a canonical reading.
// Every locale number is parsed here; nothing downstream sees locale text.
func ToRecord(ext scanning.Extraction, capturedAt time.Time) (Record, error) {
	if ext.CurrentReading.IsUnknown() {
		return Record{}, common.NewAppError(common.ErrMapping, "current reading is unknown", nil)
	}

	value, err := locale.ParseNumber(ext.CurrentReading.Value)
	if err != nil {
		return Record{}, common.NewAppError(common.ErrMapping, "current reading", err)
	}

	record := Record{
		MeterNumber: ext.MeterNumber.Value,
		Value:       value,
		Unit:        ext.Unit.Value,
		Confidence:  ext.CurrentReading.Confidence,
		Timestamp:   capturedAt,
	}

	if record.HT, err = tariffValue(ext.TariffInfo.HT); err != nil {
		return Record{}, common.NewAppError(common.ErrMapping, "HT tariff", err)
	}
	if record.NT, err = tariffValue(ext.TariffInfo.NT); err != nil {
		return Record{}, common.NewAppError(common.ErrMapping, "NT tariff", err)
	}

	if !ext.AdditionalInfo.IsUnknown() && ext.AdditionalInfo.Value != "" {
		record.AdditionalInfo = ext.AdditionalInfo.Value
	}

	return record, nil
}

func tariffValue(v scanning.OCRValue) (*float64, error) {
	if v.IsUnknown() || v.Value == "" {
		return nil, nil
	}
	f, err := locale.ParseNumber(v.Value)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// point converts a record into a meter_reading point
func (r Record) point() Point {
	tags := map[string]string{"meter_number": r.MeterNumber}
	if r.MeterType != "" {
		tags["meter_type"] = r.MeterType
	}

	fields := map[string]any{
		"value":      r.Value,
		"unit":       r.Unit,
		"confidence": r.Confidence,
	}
	if r.HT != nil {
		fields["HT"] = *r.HT
	}
	if r.NT != nil {
		fields["NT"] = *r.NT
	}
	if r.AdditionalInfo != "" {
		fields["additional_info"] = r.AdditionalInfo
	}
	if r.CaptureID != "" {
		fields["capture_id"] = r.CaptureID
	}

	return Point{
		Measurement: measurementReading,
		Tags:        tags,
		Fields:      fields,
		Time:        r.Timestamp,
	}
}

// point converts a price into a utility_price point keyed by its validity start
func (p UtilityPrice) point() Point {
	return Point{
		Measurement: measurementPrice,
		Tags:        map[string]string{"type": string(p.Type)},
		Fields: map[string]any{
			"base_price": p.BasePrice,
			"work_price": p.WorkPrice,
			"provider":   p.Provider,
		},
		Time: p.ValidFrom,
	}
}

// String is used in logs
func (r Record) String() string {
	return fmt.Sprintf("%s=%s %s", r.MeterNumber, locale.FormatNumber(r.Value, 3), r.Unit)
}
