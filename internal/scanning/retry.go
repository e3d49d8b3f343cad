package scanning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zombor/meter-tracker/internal/common"
)

// Retrying wraps a Scanner and retries calls that fail with a backend outage.
// Parse and structure failures are returned immediately.
type Retrying struct {
	next            Scanner
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewRetrying creates a retrying decorator around next
func NewRetrying(next Scanner, maxRetries int, initialInterval time.Duration) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialInterval <= 0 {
		initialInterval = 500 * time.Millisecond
	}
	return &Retrying{
		next:            next,
		maxRetries:      uint64(maxRetries),
		initialInterval: initialInterval,
		maxInterval:     30 * time.Second,
	}
}

// ScanMeter calls the wrapped scanner with exponential backoff
func (r *Retrying) ScanMeter(ctx context.Context, imageData []byte, contentType string) (*Extraction, error) {
	var result *Extraction
	attempt := 0

	op := func() error {
		attempt++
		ext, err := r.next.ScanMeter(ctx, imageData, contentType)
		if err == nil {
			result = ext
			return nil
		}
		if errors.Is(err, common.ErrBackendUnavailable) {
			slog.Warn("scan backend unavailable", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = 0

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// Close closes the wrapped scanner
func (r *Retrying) Close() error {
	return r.next.Close()
}
