package funder

import (
	"context"
	"fmt"
	"sync"

	"bfx-lend-bot/internal/config"
	"bfx-lend-bot/internal/state"
)

// fakeExchange simulates the funding wallet and offer book with real balance
// movement, so reconciliation tests can observe convergence across runs.
type fakeExchange struct {
	mu          sync.Mutex
	total       float64
	available   float64
	hasWallet   bool
	offers      []Offer
	nextID      int64
	canceled    []int64
	submitted   []OfferRequest
	rejectBelow float64
	walletErr   error
	offersErr   error
	events      *[]string
}

func newFakeExchange(total, available float64) *fakeExchange {
	return &fakeExchange{total: total, available: available, hasWallet: true, nextID: 100}
}

func (f *fakeExchange) FundingWallet(ctx context.Context, currency string) (Wallet, bool, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.walletErr != nil {
		return Wallet{}, false, f.walletErr
	}
	if !f.hasWallet {
		return Wallet{}, false, nil
	}
	return Wallet{Currency: currency, BalanceTotal: f.total, BalanceAvailable: f.available}, true, nil
}

func (f *fakeExchange) ActiveOffers(ctx context.Context, symbol string) ([]Offer, error) {
	_ = ctx
	_ = symbol
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offersErr != nil {
		return nil, f.offersErr
	}
	return append([]Offer(nil), f.offers...), nil
}

func (f *fakeExchange) SubmitOffer(ctx context.Context, req OfferRequest) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectBelow > 0 && req.Amount < f.rejectBelow {
		return fmt.Errorf("exchange rejected offer: %w", ErrOfferBelowMinimum)
	}
	f.record("submit")
	f.nextID++
	f.submitted = append(f.submitted, req)
	f.offers = append(f.offers, Offer{ID: f.nextID, Symbol: req.Symbol, Amount: req.Amount, Rate: req.Rate, Period: req.Period})
	f.available -= req.Amount
	return nil
}

func (f *fakeExchange) CancelOffer(ctx context.Context, id int64) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cancel")
	for i, offer := range f.offers {
		if offer.ID == id {
			f.available += offer.Amount
			f.offers = append(f.offers[:i], f.offers[i+1:]...)
			f.canceled = append(f.canceled, id)
			return nil
		}
	}
	return fmt.Errorf("offer %d not found", id)
}

func (f *fakeExchange) record(event string) {
	if f.events != nil {
		*f.events = append(*f.events, event)
	}
}

type fakeSeriesStore struct {
	mu     sync.Mutex
	data   map[string][]state.IdleSample
	events *[]string
}

func newFakeSeriesStore() *fakeSeriesStore {
	return &fakeSeriesStore{data: make(map[string][]state.IdleSample)}
}

func (f *fakeSeriesStore) Load(ctx context.Context, currency string) ([]state.IdleSample, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.IdleSample(nil), f.data[currency]...), nil
}

func (f *fakeSeriesStore) Save(ctx context.Context, currency string, samples []state.IdleSample) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events != nil {
		*f.events = append(*f.events, "save")
	}
	f.data[currency] = append([]state.IdleSample(nil), samples...)
	return nil
}

type fakeAlerts struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeAlerts) Publish(ctx context.Context, message string) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

type fakeSignals struct {
	frr  float64
	bbr  float64
	errs map[string]error
}

func (f *fakeSignals) Read(ctx context.Context, cfg config.CurrencyConfig) (float64, float64, error) {
	_ = ctx
	if err := f.errs[cfg.Name]; err != nil {
		return 0, 0, err
	}
	return f.frr, f.bbr, nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	snapshots []TickSnapshot
}

func (f *fakeRecorder) RecordTick(snapshot TickSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snapshot)
}
