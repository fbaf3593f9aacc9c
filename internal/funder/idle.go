package funder

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"bfx-lend-bot/internal/config"
	"bfx-lend-bot/internal/metrics"
	"bfx-lend-bot/internal/state"
)

// Monitor records the per-currency idle balance series and raises an alert
// when money has been sitting idle above a threshold for long enough.
type Monitor struct {
	store   SeriesStore
	alerts  AlertSink
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewMonitor(store SeriesStore, alerts AlertSink, m *metrics.Metrics, ttl time.Duration, log *zap.Logger) *Monitor {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Monitor{
		store:   store,
		alerts:  alerts,
		metrics: m,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// RecordAndCheck appends the current idle observation, prunes expired
// samples, persists the series, and then scans for an alert-worthy streak.
// The persist happens before the scan so a failed alert never loses data.
func (m *Monitor) RecordAndCheck(ctx context.Context, cfg config.CurrencyConfig, idle float64) error {
	now := m.now().UTC()
	samples, err := m.store.Load(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("load idle series: %w", err)
	}
	samples = append(samples, state.IdleSample{Time: now, Amount: idle})
	samples = pruneExpired(samples, now, m.ttl)
	if err := m.store.Save(ctx, cfg.Name, samples); err != nil {
		return fmt.Errorf("save idle series: %w", err)
	}

	if cfg.IdleAlert.Threshold <= 0 || cfg.IdleAlert.Window <= 0 || m.alerts == nil {
		return nil
	}
	lowest, elapsed, ok := idleStreak(samples, now, cfg.IdleAlert)
	if !ok {
		return nil
	}
	m.metrics.IdleAlerts.Inc()
	msg := fmt.Sprintf("at least %.2f %s has been idle for %s", lowest, cfg.Name, formatElapsed(elapsed))
	m.log.Warn("idle balance alert",
		zap.String("currency", cfg.Name),
		zap.Float64("lowest", lowest),
		zap.Duration("elapsed", elapsed))
	if err := m.alerts.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish idle alert: %w", err)
	}
	return nil
}

// pruneExpired drops samples older than the retention window. Samples are
// stored oldest first, so the survivors form a suffix.
func pruneExpired(samples []state.IdleSample, now time.Time, ttl time.Duration) []state.IdleSample {
	if ttl <= 0 {
		return samples
	}
	cut := 0
	for cut < len(samples) && now.Sub(samples[cut].Time) > ttl {
		cut++
	}
	return samples[cut:]
}

// idleStreak walks the series newest first looking for an unbroken run of
// samples at or above the alert threshold that reaches back at least the
// configured window. It reports the lowest idle amount seen across the run,
// which is the amount guaranteed to have been idle the whole time. With
// extend_streak the walk continues past the window boundary to report the
// full length of the run.
func idleStreak(samples []state.IdleSample, now time.Time, cfg config.IdleAlertConfig) (lowest float64, elapsed time.Duration, ok bool) {
	lowest = math.Inf(1)
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if s.Amount < cfg.Threshold {
			break
		}
		if s.Amount < lowest {
			lowest = s.Amount
		}
		if now.Sub(s.Time) >= cfg.Window.Std() {
			ok = true
			elapsed = now.Sub(s.Time)
			if !cfg.ExtendStreak {
				break
			}
		}
	}
	if !ok {
		return 0, 0, false
	}
	return lowest, elapsed, true
}

func formatElapsed(d time.Duration) string {
	if d >= 24*time.Hour {
		days := d.Hours() / 24
		return fmt.Sprintf("%.1f days", days)
	}
	return d.Round(time.Minute).String()
}
