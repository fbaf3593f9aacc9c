package funder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bfx-lend-bot/internal/config"
	"bfx-lend-bot/internal/metrics"
)

// Controller drives one tick of the lending loop across all configured
// currencies. Currencies are independent: a failure in one is collected and
// the loop moves on to the next.
type Controller struct {
	reader     ExchangeReader
	signals    SignalSource
	monitor    *Monitor
	reconciler *Reconciler
	recorder   TickRecorder
	metrics    *metrics.Metrics
	currencies []config.CurrencyConfig
	log        *zap.Logger
	now        func() time.Time
}

func NewController(
	reader ExchangeReader,
	signals SignalSource,
	monitor *Monitor,
	reconciler *Reconciler,
	recorder TickRecorder,
	m *metrics.Metrics,
	currencies []config.CurrencyConfig,
	log *zap.Logger,
) *Controller {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Controller{
		reader:     reader,
		signals:    signals,
		monitor:    monitor,
		reconciler: reconciler,
		recorder:   recorder,
		metrics:    m,
		currencies: currencies,
		log:        log,
		now:        time.Now,
	}
}

// RunTick processes every currency once and joins the failures, so one bad
// currency never starves the others of a pass.
func (c *Controller) RunTick(ctx context.Context) error {
	var errs []error
	for _, cur := range c.currencies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.runCurrency(ctx, cur); err != nil {
			c.metrics.TickFailures.Inc()
			c.log.Error("currency tick failed", zap.String("currency", cur.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", cur.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) runCurrency(ctx context.Context, cfg config.CurrencyConfig) error {
	log := c.log.With(zap.String("currency", cfg.Name))

	wallet, ok, err := c.reader.FundingWallet(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("read funding wallet: %w", err)
	}
	if !ok {
		log.Debug("no funding wallet, treating balances as zero")
		wallet = Wallet{Currency: cfg.Name}
	}

	active, err := c.reader.ActiveOffers(ctx, cfg.Symbol())
	if err != nil {
		return fmt.Errorf("read active offers: %w", err)
	}
	offered := 0.0
	for _, offer := range active {
		offered += offer.Amount
	}

	idle, err := IdleBalance(wallet.BalanceTotal, wallet.BalanceAvailable, offered)
	if err != nil {
		return err
	}
	// The idle observation is recorded before any offer is touched, so the
	// series reflects what the tick saw rather than what it did.
	if err := c.monitor.RecordAndCheck(ctx, cfg, idle); err != nil {
		return err
	}

	frr, bbr, err := c.signals.Read(ctx, cfg)
	if err != nil {
		return fmt.Errorf("read market signals: %w", err)
	}
	target := Target{Rate: TargetRate(cfg, frr, bbr)}
	target.Period = TargetPeriod(cfg, target.Rate)

	res, err := c.reconciler.Reconcile(ctx, cfg, target, active)
	if err != nil {
		return err
	}

	log.Info("tick complete",
		zap.Float64("frr", frr),
		zap.Float64("bbr", bbr),
		zap.Float64("target_rate", target.Rate),
		zap.Int("target_period", target.Period),
		zap.Float64("idle", idle),
		zap.Int("canceled", res.Canceled),
		zap.Int("submitted", res.Submitted),
		zap.Int("skipped", res.Skipped))

	if c.recorder != nil {
		c.recorder.RecordTick(TickSnapshot{
			Time:             c.now().UTC(),
			Currency:         cfg.Name,
			BalanceTotal:     wallet.BalanceTotal,
			BalanceAvailable: wallet.BalanceAvailable,
			BalanceIdle:      idle,
			FRR:              frr,
			BBR:              bbr,
			TargetRate:       target.Rate,
			TargetPeriod:     target.Period,
			OffersCanceled:   res.Canceled,
			OffersSubmitted:  res.Submitted,
		})
	}
	return nil
}

// IdleBalance derives the idle portion of the funding wallet: everything not
// currently lent out, i.e. the sum of what is offered and what is still
// available. A negative result means the wallet and offer numbers disagree
// and is surfaced instead of clamped.
func IdleBalance(total, available, offered float64) (float64, error) {
	lent := total - offered - available
	idle := total - lent
	if idle < 0 {
		return idle, fmt.Errorf("%w: total=%.2f available=%.2f offered=%.2f", ErrNegativeIdle, total, available, offered)
	}
	return idle, nil
}
