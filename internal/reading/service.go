package reading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/meter-tracker/internal/common"
	"github.com/zombor/meter-tracker/internal/meter"
	"github.com/zombor/meter-tracker/internal/scanning"
)

// priceWindow bounds the current price lookup; tariffs can stay valid for years
const priceWindow = 10 * 365 * 24 * time.Hour

// IDGenerator generates unique capture ids
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Capture is one meter photograph submitted for reading
type Capture struct {
	Image       []byte
	ContentType string
	// MeterType selects a registry profile for digit reconciliation; empty skips it
	MeterType string
}

// Service runs the reading pipeline and answers latest-reading and price queries
type Service struct {
	store       SeriesStore
	scanner     scanning.Scanner
	archive     Archive
	registry    *meter.Registry
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service. archive may be nil to skip image archiving.
func NewService(store SeriesStore, scanner scanning.Scanner, archive Archive, registry *meter.Registry) *Service {
	return NewServiceWithDeps(store, scanner, archive, registry, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store SeriesStore, scanner scanning.Scanner, archive Archive, registry *meter.Registry, idGen IDGenerator, timeSrc TimeSource) *Service {
	if registry == nil {
		registry = meter.DefaultRegistry()
	}
	return &Service{
		store:       store,
		scanner:     scanner,
		archive:     archive,
		registry:    registry,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ProcessCapture scans a meter photograph and stores the resulting reading
func (s *Service) ProcessCapture(ctx context.Context, c Capture) (*Record, error) {
	if len(c.Image) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}

	var profile *meter.Profile
	if c.MeterType != "" {
		p, err := s.registry.Lookup(c.MeterType)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		profile = &p
	}

	captureID := s.idGenerator.Generate()
	now := s.timeSource.Now()
	logger := slog.With("capture_id", captureID)

	var archived string
	cleanup := func() {
		if archived == "" {
			return
		}
		if err := s.archive.Delete(archived); err != nil {
			logger.Warn("Failed to delete archived image", "file", archived, "error", err)
		}
	}

	if s.archive != nil {
		name, err := s.archive.Save(captureID, c.ContentType, c.Image)
		if err != nil {
			return nil, fmt.Errorf("archiving image: %w", err)
		}
		archived = name
	}

	ext, err := s.scanner.ScanMeter(ctx, c.Image, c.ContentType)
	if err != nil {
		logger.Error("Failed to scan meter",
			"content_type", c.ContentType,
			"file_size", len(c.Image),
			"error", err,
		)
		cleanup()
		return nil, fmt.Errorf("scanning meter: %w", err)
	}

	// the validator fills a missing reading with "0,0" at confidence 0
	if ext.CurrentReading.Value == scanning.FallbackReading && ext.CurrentReading.Confidence == 0 {
		cleanup()
		return nil, common.NewAppError(common.ErrMapping, "no meter reading recognized", nil)
	}

	if profile != nil && !ext.CurrentReading.IsUnknown() {
		raw := ext.CurrentReading.Value
		ext.CurrentReading.Value = meter.Normalize(raw, profile)
		if raw != ext.CurrentReading.Value {
			logger.Info("Normalized reading", "meter_type", profile.ID, "raw", raw, "normalized", ext.CurrentReading.Value)
		}
	}

	record, err := ToRecord(*ext, now)
	if err != nil {
		logger.Error("Failed to map reading", "reading", ext.CurrentReading.Value, "error", err)
		cleanup()
		return nil, fmt.Errorf("mapping reading: %w", err)
	}
	record.CaptureID = captureID
	if profile != nil {
		record.MeterType = profile.ID
	}

	// a dismissed capture must not race a late write
	if err := ctx.Err(); err != nil {
		cleanup()
		return nil, err
	}

	if err := s.store.WritePoint(ctx, record.point()); err != nil {
		cleanup()
		return nil, fmt.Errorf("saving reading: %w", err)
	}

	logger.Info("Saved reading", "reading", record.String(), "confidence", record.Confidence)
	return &record, nil
}

// LatestReadings returns the newest reading of every meter seen in the last year
func (s *Service) LatestReadings(ctx context.Context) ([]Record, error) {
	rows, err := s.store.LastRows(ctx, LastQuery{Measurement: measurementReading})
	if err != nil {
		return nil, fmt.Errorf("querying latest readings: %w", err)
	}
	return AssembleLatest(rows)
}

// LatestReading returns the newest reading of one meter; found is false if there is none
func (s *Service) LatestReading(ctx context.Context, meterNumber string) (Record, bool, error) {
	rows, err := s.store.LastRows(ctx, LastQuery{
		Measurement: measurementReading,
		Tags:        map[string]string{"meter_number": meterNumber},
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("querying latest reading: %w", err)
	}

	records, err := AssembleLatest(rows)
	if err != nil {
		return Record{}, false, err
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}
	return records[0], true, nil
}

// SavePrice stores a tariff; a price with the same type and ValidFrom is replaced
func (s *Service) SavePrice(ctx context.Context, p UtilityPrice) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.WritePoint(ctx, p.point()); err != nil {
		return fmt.Errorf("saving price: %w", err)
	}
	slog.Info("Saved price", "type", p.Type, "provider", p.Provider, "valid_from", p.ValidFrom)
	return nil
}

// CurrentPrice returns the price with the latest ValidFrom that is not in the future
func (s *Service) CurrentPrice(ctx context.Context, t UtilityType) (UtilityPrice, bool, error) {
	if _, err := ParseUtilityType(string(t)); err != nil {
		return UtilityPrice{}, false, err
	}

	rows, err := s.store.LastRows(ctx, LastQuery{
		Measurement: measurementPrice,
		Window:      priceWindow,
		Tags:        map[string]string{"type": string(t)},
	})
	if err != nil {
		return UtilityPrice{}, false, fmt.Errorf("querying current price: %w", err)
	}

	row, ok := latestRow(rows)
	if !ok {
		return UtilityPrice{}, false, nil
	}
	price, err := priceFromRow(row)
	if err != nil {
		return UtilityPrice{}, false, err
	}
	return price, true, nil
}

// CaptureImage returns the archived photo of a capture
func (s *Service) CaptureImage(captureID string) ([]byte, string, error) {
	if s.archive == nil {
		return nil, "", ErrImageNotFound
	}
	if _, err := uuid.Parse(captureID); err != nil {
		return nil, "", ErrImageNotFound
	}
	data, contentType, err := s.archive.Get(captureID)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("getting capture image: %w", err)
	}
	return data, contentType, nil
}

// MeterTypes lists the registered meter profiles
func (s *Service) MeterTypes() []meter.Profile {
	return s.registry.List()
}
