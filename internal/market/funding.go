package market

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"time"

	"bfx-lend-bot/internal/bfx/rest"
	"bfx-lend-bot/internal/config"

	"go.uber.org/zap"
)

// rateDecimals bounds rate precision before any comparison or submission so
// reconciliation does not oscillate on floating noise.
const rateDecimals = 6

// daysPerYear converts the funding-stats FRR field, published as FRR/365,
// back to a daily rate.
const daysPerYear = 365

type Ticker struct {
	FRR                float64
	Bid                float64
	BidPeriod          int
	Ask                float64
	AskPeriod          int
	FRRAmountAvailable float64
}

type AskLevel struct {
	Rate   float64
	Period int
	Count  int
	Amount float64
}

type FundingStat struct {
	Time      time.Time
	FRRDaily  float64
	AvgPeriod float64
}

// Reader derives the funding-rate signals for one symbol: the exchange's
// flash return rate and a book-backed rate walked out of the ask ladder.
type Reader struct {
	rest      *rest.Client
	precision string
	bookLen   int
	log       *zap.Logger
}

func NewReader(restClient *rest.Client, cfg config.FundingConfig, log *zap.Logger) *Reader {
	return &Reader{
		rest:      restClient,
		precision: cfg.BookPrecision,
		bookLen:   cfg.BookLength,
		log:       log,
	}
}

// Read returns (frr, bbr) for the currency's symbol, both truncated to
// rateDecimals. bbr is -Inf when the book is empty, which callers treat as
// "no book signal".
func (r *Reader) Read(ctx context.Context, cfg config.CurrencyConfig) (float64, float64, error) {
	symbol := cfg.Symbol()
	var frr float64
	var err error
	switch cfg.FRRSource {
	case "stats":
		frr, err = r.frrFromStats(ctx, symbol)
	default:
		frr, err = r.frrFromTicker(ctx, symbol)
	}
	if err != nil {
		return 0, 0, err
	}

	levels, err := r.FundingBook(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}
	bbr := BookBackedRate(levels, cfg.Book.MinCumulativeAsk, cfg.Book.WeightByCount)

	frr = TruncateRate(frr)
	if !math.IsInf(bbr, -1) {
		bbr = TruncateRate(bbr)
	}
	r.log.Debug("funding signals",
		zap.String("symbol", symbol),
		zap.Float64("frr", frr),
		zap.Float64("bbr", bbr),
		zap.Int("book_levels", len(levels)),
	)
	return frr, bbr, nil
}

func (r *Reader) frrFromTicker(ctx context.Context, symbol string) (float64, error) {
	ticker, err := r.FundingTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return ticker.FRR, nil
}

func (r *Reader) frrFromStats(ctx context.Context, symbol string) (float64, error) {
	stats, err := r.FundingStats(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if len(stats) == 0 {
		return 0, fmt.Errorf("no funding stats for %s", symbol)
	}
	return stats[0].FRRDaily, nil
}

func (r *Reader) FundingTicker(ctx context.Context, symbol string) (Ticker, error) {
	payload, err := r.rest.GetPublic(ctx, "v2/ticker/"+symbol, nil)
	if err != nil {
		return Ticker{}, err
	}
	row, ok := toSlice(payload)
	if !ok {
		return Ticker{}, fmt.Errorf("unexpected ticker payload: %T", payload)
	}
	frr, ok := floatAt(row, 0)
	if !ok {
		return Ticker{}, fmt.Errorf("ticker for %s has no frr", symbol)
	}
	ticker := Ticker{FRR: frr}
	ticker.Bid, _ = floatAt(row, 1)
	ticker.BidPeriod, _ = intAt(row, 2)
	ticker.Ask, _ = floatAt(row, 4)
	ticker.AskPeriod, _ = intAt(row, 5)
	ticker.FRRAmountAvailable, _ = floatAt(row, 15)
	return ticker, nil
}

// FundingBook returns the ask side of the funding book, positive-amount
// levels only, ordered by ascending rate.
func (r *Reader) FundingBook(ctx context.Context, symbol string) ([]AskLevel, error) {
	params := url.Values{}
	params.Set("len", strconv.Itoa(r.bookLen))
	payload, err := r.rest.GetPublic(ctx, "v2/book/"+symbol+"/"+r.precision, params)
	if err != nil {
		return nil, err
	}
	rows, ok := toSlice(payload)
	if !ok {
		return nil, fmt.Errorf("unexpected book payload: %T", payload)
	}
	levels := make([]AskLevel, 0, len(rows))
	for _, raw := range rows {
		row, ok := toSlice(raw)
		if !ok || len(row) < 4 {
			continue
		}
		rate, rateOK := floatAt(row, 0)
		period, _ := intAt(row, 1)
		count, _ := intAt(row, 2)
		amount, amountOK := floatAt(row, 3)
		if !rateOK || !amountOK || amount <= 0 {
			continue
		}
		levels = append(levels, AskLevel{Rate: rate, Period: period, Count: count, Amount: amount})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Rate < levels[j].Rate })
	return levels, nil
}

func (r *Reader) FundingStats(ctx context.Context, symbol string) ([]FundingStat, error) {
	payload, err := r.rest.GetPublic(ctx, "v2/funding/stats/"+symbol+"/hist", nil)
	if err != nil {
		return nil, err
	}
	rows, ok := toSlice(payload)
	if !ok {
		return nil, fmt.Errorf("unexpected funding stats payload: %T", payload)
	}
	stats := make([]FundingStat, 0, len(rows))
	for _, raw := range rows {
		row, ok := toSlice(raw)
		if !ok || len(row) < 5 {
			continue
		}
		ms, _ := floatAt(row, 0)
		frr, frrOK := floatAt(row, 3)
		avgPeriod, _ := floatAt(row, 4)
		if !frrOK {
			continue
		}
		stats = append(stats, FundingStat{
			Time:      time.UnixMilli(int64(ms)).UTC(),
			FRRDaily:  frr * daysPerYear,
			AvgPeriod: avgPeriod,
		})
	}
	return stats, nil
}

// BookBackedRate walks the ask ladder in ascending rate order accumulating
// amount (or amount x count) per level; the result is the rate of the first
// level at which the running total reaches minCumulative. When no level
// reaches it the deepest level's rate is returned; an empty ladder yields
// -Inf, meaning there is no book to lean on.
func BookBackedRate(levels []AskLevel, minCumulative float64, weightByCount bool) float64 {
	if len(levels) == 0 {
		return math.Inf(-1)
	}
	cumulative := 0.0
	for _, level := range levels {
		amount := level.Amount
		if weightByCount && level.Count > 0 {
			amount *= float64(level.Count)
		}
		cumulative += amount
		if cumulative >= minCumulative {
			return level.Rate
		}
	}
	return levels[len(levels)-1].Rate
}

// TruncateRate truncates toward zero at rateDecimals places.
func TruncateRate(rate float64) float64 {
	factor := math.Pow10(rateDecimals)
	return math.Trunc(rate*factor) / factor
}
