package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const idleSeriesKeyPrefix = "idle:series:"

// IdleSample is one observation of how much funding balance sat idle at a
// point in time. Samples are append-only; a series is replaced wholesale on
// every write.
type IdleSample struct {
	Time   time.Time `json:"ts"`
	Amount float64   `json:"value"`
}

func idleSeriesKey(currency string) string {
	return idleSeriesKeyPrefix + strings.ToUpper(currency)
}

// LoadIdleSeries reads the stored series for a currency, oldest first. A
// missing key is a first run and yields an empty series; malformed stored
// data is surfaced as an error.
func LoadIdleSeries(ctx context.Context, store Store, currency string) ([]IdleSample, error) {
	raw, ok, err := store.Get(ctx, idleSeriesKey(currency))
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var samples []IdleSample
	if err := json.Unmarshal([]byte(raw), &samples); err != nil {
		return nil, fmt.Errorf("idle series for %s is malformed: %w", currency, err)
	}
	return samples, nil
}

// SaveIdleSeries replaces the stored series for a currency.
func SaveIdleSeries(ctx context.Context, store Store, currency string, samples []IdleSample) error {
	if samples == nil {
		samples = []IdleSample{}
	}
	payload, err := json.Marshal(samples)
	if err != nil {
		return err
	}
	return store.Set(ctx, idleSeriesKey(currency), string(payload))
}
