package reading

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidInput marks requests rejected before any backend is called
var ErrInvalidInput = errors.New("invalid input")

const (
	measurementReading = "meter_reading"
	measurementPrice   = "utility_price"

	defaultWindow = 365 * 24 * time.Hour
)

// Point is one timestamped entry of a measurement series
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// Row is one flattened query result: _time, _measurement, tags and fields by name
type Row map[string]any

// LastQuery selects the latest point of every series of a measurement
type LastQuery struct {
	Measurement string
	// Window bounds the scan to [now-Window, now]; zero means 365 days
	Window time.Duration
	// Tags restricts the result to series carrying all of these tag values
	Tags map[string]string
}

func (q LastQuery) window() time.Duration {
	if q.Window <= 0 {
		return defaultWindow
	}
	return q.Window
}

// SeriesStore defines the interface for time-series storage operations
type SeriesStore interface {
	// WritePoint durably appends a point. A point with the same series and time replaces the old one.
	WritePoint(ctx context.Context, p Point) error

	// LastRows returns the latest point per matching series. No rows is not an error.
	LastRows(ctx context.Context, q LastQuery) ([]Row, error)

	// Close closes the store
	Close() error
}
