// Package pricefeed periodically imports utility tariffs from a JSON endpoint.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/meter-tracker/internal/common"
	"github.com/zombor/meter-tracker/internal/reading"
)

// PriceSaver stores an imported price
type PriceSaver interface {
	SavePrice(ctx context.Context, p reading.UtilityPrice) error
}

// Feed fetches {basePrice, workPrice, provider, type} documents
type Feed struct {
	url          string
	interval     time.Duration
	fallbackType reading.UtilityType
	saver        PriceSaver
	client       *http.Client
	now          func() time.Time
}

// New creates a Feed. Entries without a type are stored as fallbackType.
func New(url string, interval time.Duration, fallbackType reading.UtilityType, saver PriceSaver) *Feed {
	return &Feed{
		url:          url,
		interval:     interval,
		fallbackType: fallbackType,
		saver:        saver,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

type feedPayload struct {
	BasePrice *float64 `json:"basePrice"`
	WorkPrice *float64 `json:"workPrice"`
	Provider  string   `json:"provider"`
	Type      string   `json:"type"`
}

// Run fetches once immediately and then every interval until ctx is done.
// Failures are logged and the next tick tries again.
func (f *Feed) Run(ctx context.Context) {
	slog.Info("Starting price feed", "url", f.url, "interval", f.interval)

	f.tick(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Price feed stopped")
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Feed) tick(ctx context.Context) {
	price, err := f.Update(ctx)
	if err != nil {
		slog.Error("Failed to update price", "url", f.url, "error", err)
		return
	}
	slog.Info("Price updated", "type", price.Type, "provider", price.Provider, "work_price", price.WorkPrice)
}

// Update fetches the feed once and stores the price valid from now
func (f *Feed) Update(ctx context.Context) (reading.UtilityPrice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return reading.UtilityPrice{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return reading.UtilityPrice{}, common.BackendUnavailable("price feed request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return reading.UtilityPrice{}, common.BackendUnavailable(fmt.Sprintf("price feed returned status %d", resp.StatusCode), nil)
	}

	var payload feedPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return reading.UtilityPrice{}, common.NewAppError(common.ErrParse, "failed to decode price feed", err)
	}
	if payload.BasePrice == nil || payload.WorkPrice == nil {
		return reading.UtilityPrice{}, common.NewAppError(common.ErrParse, "price feed is missing basePrice or workPrice", nil)
	}

	priceType := f.fallbackType
	if payload.Type != "" {
		priceType, err = reading.ParseUtilityType(payload.Type)
		if err != nil {
			return reading.UtilityPrice{}, err
		}
	}

	price := reading.UtilityPrice{
		BasePrice: *payload.BasePrice,
		WorkPrice: *payload.WorkPrice,
		Provider:  payload.Provider,
		Type:      priceType,
		ValidFrom: f.now(),
	}
	if err := f.saver.SavePrice(ctx, price); err != nil {
		return reading.UtilityPrice{}, fmt.Errorf("failed to save price: %w", err)
	}
	return price, nil
}
