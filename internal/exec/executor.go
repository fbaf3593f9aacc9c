package exec

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bfx-lend-bot/internal/account"
	"bfx-lend-bot/internal/funder"
	"bfx-lend-bot/internal/metrics"
)

// Exchange is the slice of the account client the executor drives.
type Exchange interface {
	SubmitOffer(ctx context.Context, req account.OfferRequest) error
	CancelOffer(ctx context.Context, id int64) error
}

// Executor carries offer writes to the exchange, counting and logging each
// one. Exchange-side "amount too small" rejections are translated into the
// reconciler's sentinel so they are skipped rather than treated as outages.
type Executor struct {
	exchange Exchange
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func New(exchange Exchange, m *metrics.Metrics, log *zap.Logger) *Executor {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Executor{exchange: exchange, metrics: m, log: log}
}

func (e *Executor) SubmitOffer(ctx context.Context, req funder.OfferRequest) error {
	err := e.exchange.SubmitOffer(ctx, account.OfferRequest{
		Type:   account.OfferTypeLimit,
		Symbol: req.Symbol,
		Amount: req.Amount,
		Rate:   req.Rate,
		Period: req.Period,
	})
	if errors.Is(err, account.ErrOfferBelowMinimum) {
		e.metrics.OffersRejected.Inc()
		return fmt.Errorf("%s %.2f: %w", req.Symbol, req.Amount, funder.ErrOfferBelowMinimum)
	}
	if err != nil {
		return err
	}
	e.metrics.OffersSubmitted.Inc()
	e.log.Info("offer submitted",
		zap.String("symbol", req.Symbol),
		zap.Float64("amount", req.Amount),
		zap.Float64("rate", req.Rate),
		zap.Int("period", req.Period))
	return nil
}

func (e *Executor) CancelOffer(ctx context.Context, id int64) error {
	if err := e.exchange.CancelOffer(ctx, id); err != nil {
		return err
	}
	e.metrics.OffersCanceled.Inc()
	e.log.Info("offer canceled", zap.Int64("offer_id", id))
	return nil
}
