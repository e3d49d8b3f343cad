package reading

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/meter-tracker/internal/common"
)

// AssembleLatest rebuilds the latest reading per meter from flattened query rows.
// Rows without a value (older points of single fields) are skipped. An empty
// input yields an empty slice.
func AssembleLatest(rows []Row) ([]Record, error) {
	latest := make(map[string]Record)
	for _, row := range rows {
		if _, ok := row["value"]; !ok {
			continue
		}
		record, err := FromRow(row)
		if err != nil {
			return nil, err
		}
		if prev, ok := latest[record.MeterNumber]; ok && !record.Timestamp.After(prev.Timestamp) {
			continue
		}
		latest[record.MeterNumber] = record
	}

	records := make([]Record, 0, len(latest))
	for _, r := range latest {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].MeterNumber < records[j].MeterNumber })
	return records, nil
}

// FromRow converts one flattened meter_reading row into a Record.
// Numeric fields may come back as text and are coerced.
func FromRow(row Row) (Record, error) {
	value, ok, err := floatField(row, "value")
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, common.NewAppError(common.ErrParse, "row has no value field", nil)
	}

	ts, err := rowTime(row)
	if err != nil {
		return Record{}, err
	}

	confidence, _, err := floatField(row, "confidence")
	if err != nil {
		return Record{}, err
	}

	record := Record{
		MeterNumber:    stringField(row, "meter_number"),
		MeterType:      stringField(row, "meter_type"),
		Value:          value,
		Unit:           stringField(row, "unit"),
		Confidence:     confidence,
		AdditionalInfo: stringField(row, "additional_info"),
		CaptureID:      stringField(row, "capture_id"),
		Timestamp:      ts,
	}

	for key, dst := range map[string]**float64{"HT": &record.HT, "NT": &record.NT} {
		f, ok, err := floatField(row, key)
		if err != nil {
			return Record{}, err
		}
		if ok {
			*dst = &f
		}
	}

	return record, nil
}

// priceFromRow converts one flattened utility_price row into a UtilityPrice
func priceFromRow(row Row) (UtilityPrice, error) {
	base, _, err := floatField(row, "base_price")
	if err != nil {
		return UtilityPrice{}, err
	}
	work, _, err := floatField(row, "work_price")
	if err != nil {
		return UtilityPrice{}, err
	}
	ts, err := rowTime(row)
	if err != nil {
		return UtilityPrice{}, err
	}
	return UtilityPrice{
		BasePrice: base,
		WorkPrice: work,
		Provider:  stringField(row, "provider"),
		Type:      UtilityType(stringField(row, "type")),
		ValidFrom: ts,
	}, nil
}

// latestRow returns the row with the greatest _time
func latestRow(rows []Row) (Row, bool) {
	var (
		best     Row
		bestTime time.Time
	)
	for _, row := range rows {
		ts, err := rowTime(row)
		if err != nil {
			continue
		}
		if best == nil || ts.After(bestTime) {
			best, bestTime = row, ts
		}
	}
	return best, best != nil
}

func stringField(row Row, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// floatField reads a numeric field; ok is false when the field is absent
func floatField(row Row, key string) (float64, bool, error) {
	raw, present := row[key]
	if !present || raw == nil {
		return 0, false, nil
	}

	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case uint64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, common.NewAppError(common.ErrParse, fmt.Sprintf("field %s", key), err)
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false, common.NewAppError(common.ErrParse, fmt.Sprintf("field %s", key), err)
		}
		return f, true, nil
	default:
		return 0, false, common.NewAppError(common.ErrParse, fmt.Sprintf("field %s has type %T", key, raw), nil)
	}
}

func rowTime(row Row) (time.Time, error) {
	switch v := row["_time"].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, common.NewAppError(common.ErrParse, "row _time", err)
		}
		return t, nil
	default:
		return time.Time{}, common.NewAppError(common.ErrParse, fmt.Sprintf("row _time has type %T", v), nil)
	}
}
