package funder

import (
	"context"
	"errors"
	"time"

	"bfx-lend-bot/internal/config"
	"bfx-lend-bot/internal/state"
)

// ErrOfferBelowMinimum is the domain rejection for an offer under the
// exchange's per-symbol minimum. Reconciliation skips the offer and moves on.
var ErrOfferBelowMinimum = errors.New("offer amount below exchange minimum")

// ErrNegativeIdle marks a wallet/offer accounting anomaly. It is surfaced,
// never clamped away.
var ErrNegativeIdle = errors.New("negative idle balance")

// Wallet is the funding-wallet snapshot for one currency, read fresh each
// tick and never persisted.
type Wallet struct {
	Currency         string
	BalanceTotal     float64
	BalanceAvailable float64
}

// Offer is an active funding offer as observed on the exchange. The bot only
// requests cancels and submits; the exchange owns the object.
type Offer struct {
	ID     int64
	Symbol string
	Amount float64
	Rate   float64
	Period int
}

type OfferRequest struct {
	Symbol string
	Amount float64
	Rate   float64
	Period int
}

// Target is the (rate, period) the whole position converges toward.
type Target struct {
	Rate   float64
	Period int
}

type ExchangeReader interface {
	FundingWallet(ctx context.Context, currency string) (Wallet, bool, error)
	ActiveOffers(ctx context.Context, symbol string) ([]Offer, error)
}

type ExchangeWriter interface {
	SubmitOffer(ctx context.Context, req OfferRequest) error
	CancelOffer(ctx context.Context, id int64) error
}

// SignalSource yields (frr, bbr) for a currency's funding symbol; bbr is
// -Inf when the book gave no signal.
type SignalSource interface {
	Read(ctx context.Context, cfg config.CurrencyConfig) (frr, bbr float64, err error)
}

// SeriesStore persists the idle series per currency with whole-series
// replace semantics.
type SeriesStore interface {
	Load(ctx context.Context, currency string) ([]state.IdleSample, error)
	Save(ctx context.Context, currency string, samples []state.IdleSample) error
}

type AlertSink interface {
	Publish(ctx context.Context, message string) error
}

// TickSnapshot is the per-currency telemetry emitted after reconciliation.
type TickSnapshot struct {
	Time             time.Time
	Currency         string
	BalanceTotal     float64
	BalanceAvailable float64
	BalanceIdle      float64
	FRR              float64
	BBR              float64
	TargetRate       float64
	TargetPeriod     int
	OffersCanceled   int
	OffersSubmitted  int
}

// TickRecorder receives tick snapshots; implementations must not block the
// control loop.
type TickRecorder interface {
	RecordTick(snapshot TickSnapshot)
}
