package funder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bfx-lend-bot/internal/config"
)

// ReconcileResult counts what a reconciliation pass actually did.
type ReconcileResult struct {
	Canceled  int
	Submitted int
	Skipped   int
}

// Reconciler converges the active offer set for one currency onto the
// target rate and period. It cancels offers that no longer match, splits
// the freed balance into chunks, and folds any leftover remainder into an
// existing offer so no balance is stranded below the exchange minimum.
type Reconciler struct {
	reader ExchangeReader
	writer ExchangeWriter
	max    float64
	min    float64
	log    *zap.Logger
}

func NewReconciler(reader ExchangeReader, writer ExchangeWriter, cfg config.FundingConfig, log *zap.Logger) *Reconciler {
	return &Reconciler{
		reader: reader,
		writer: writer,
		max:    cfg.MaxOfferAmount,
		min:    cfg.MinOfferAmount,
		log:    log,
	}
}

// Reconcile runs the three phases in order: cancel mismatched offers, place
// the available balance in chunks, then absorb any remainder by recombining
// it with a surviving offer. Every exchange call is sequential; a transport
// failure aborts the pass and leaves the rest for the next tick.
func (r *Reconciler) Reconcile(ctx context.Context, cfg config.CurrencyConfig, target Target, active []Offer) (ReconcileResult, error) {
	var res ReconcileResult
	log := r.log.With(zap.String("currency", cfg.Name))

	survivors := make([]Offer, 0, len(active))
	matchPeriod := cfg.MatchPeriodEnabled()
	for _, offer := range active {
		if offerMatches(offer, target, matchPeriod) {
			survivors = append(survivors, offer)
			continue
		}
		log.Info("canceling offer off target",
			zap.Int64("offer_id", offer.ID),
			zap.Float64("rate", offer.Rate),
			zap.Int("period", offer.Period))
		if err := r.writer.CancelOffer(ctx, offer.ID); err != nil {
			return res, fmt.Errorf("cancel offer %d: %w", offer.ID, err)
		}
		res.Canceled++
	}

	available, err := r.availableBalance(ctx, cfg.Name)
	if err != nil {
		return res, err
	}
	for _, amount := range SplitAmount(available, r.max, cfg.FoldRemainder) {
		if amount < r.min {
			log.Info("skipping chunk below configured minimum", zap.Float64("amount", amount))
			res.Skipped++
			continue
		}
		if err := r.submit(ctx, log, cfg.Symbol(), amount, target, &res); err != nil {
			return res, err
		}
	}

	// Anything still available is a remainder too small to stand alone.
	// Recombining it with a surviving offer keeps the whole balance lent.
	remaining, err := r.availableBalance(ctx, cfg.Name)
	if err != nil {
		return res, err
	}
	if remaining > 0 && len(survivors) > 0 {
		first := survivors[0]
		log.Info("absorbing remainder into existing offer",
			zap.Int64("offer_id", first.ID),
			zap.Float64("remainder", remaining))
		if err := r.writer.CancelOffer(ctx, first.ID); err != nil {
			return res, fmt.Errorf("cancel offer %d: %w", first.ID, err)
		}
		res.Canceled++
		combined, err := r.availableBalance(ctx, cfg.Name)
		if err != nil {
			return res, err
		}
		if err := r.submit(ctx, log, cfg.Symbol(), combined, target, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (r *Reconciler) submit(ctx context.Context, log *zap.Logger, symbol string, amount float64, target Target, res *ReconcileResult) error {
	err := r.writer.SubmitOffer(ctx, OfferRequest{
		Symbol: symbol,
		Amount: amount,
		Rate:   target.Rate,
		Period: target.Period,
	})
	if errors.Is(err, ErrOfferBelowMinimum) {
		log.Warn("offer rejected below exchange minimum", zap.Float64("amount", amount))
		res.Skipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("submit offer %s %.2f: %w", symbol, amount, err)
	}
	res.Submitted++
	return nil
}

func (r *Reconciler) availableBalance(ctx context.Context, currency string) (float64, error) {
	wallet, ok, err := r.reader.FundingWallet(ctx, currency)
	if err != nil {
		return 0, fmt.Errorf("read funding wallet: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return wallet.BalanceAvailable, nil
}

func offerMatches(offer Offer, target Target, matchPeriod bool) bool {
	if offer.Rate != target.Rate {
		return false
	}
	return !matchPeriod || offer.Period == target.Period
}

// SplitAmount breaks a balance into offer-sized chunks of at most max each.
// When fold is set the remainder is merged into the last full chunk instead
// of standing on its own.
func SplitAmount(total, max float64, fold bool) []float64 {
	if total <= 0 || max <= 0 {
		return nil
	}
	n := int(total / max)
	parts := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		parts = append(parts, max)
	}
	rest := total - float64(n)*max
	if rest > 0 {
		if fold && n > 0 {
			parts[n-1] += rest
		} else {
			parts = append(parts, rest)
		}
	}
	return parts
}
