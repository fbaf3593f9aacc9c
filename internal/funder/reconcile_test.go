package funder

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"bfx-lend-bot/internal/config"
)

func testFunding() config.FundingConfig {
	return config.FundingConfig{MaxOfferAmount: 300, MinOfferAmount: 150}
}

func TestSplitAmount(t *testing.T) {
	parts := SplitAmount(750, 300, false)
	if len(parts) != 3 {
		t.Fatalf("expected 3 chunks, got %v", parts)
	}
	sum := 0.0
	below := 0
	for _, p := range parts {
		if p > 300 {
			t.Fatalf("chunk %v exceeds max", p)
		}
		if p < 300 {
			below++
		}
		sum += p
	}
	if sum != 750 {
		t.Fatalf("chunks should sum to total, got %v", sum)
	}
	if below > 1 {
		t.Fatalf("at most one chunk may be partial, got %v", parts)
	}
}

func TestSplitAmountFoldsRemainder(t *testing.T) {
	parts := SplitAmount(750, 300, true)
	if len(parts) != 2 || parts[0] != 300 || parts[1] != 450 {
		t.Fatalf("expected [300 450], got %v", parts)
	}
}

func TestSplitAmountEdges(t *testing.T) {
	if parts := SplitAmount(0, 300, false); parts != nil {
		t.Fatalf("expected nil for zero total, got %v", parts)
	}
	if parts := SplitAmount(-10, 300, false); parts != nil {
		t.Fatalf("expected nil for negative total, got %v", parts)
	}
	if parts := SplitAmount(600, 300, false); len(parts) != 2 || parts[0] != 300 || parts[1] != 300 {
		t.Fatalf("expected two full chunks, got %v", parts)
	}
	if parts := SplitAmount(100, 300, true); len(parts) != 1 || parts[0] != 100 {
		t.Fatalf("remainder with no full chunk stands alone, got %v", parts)
	}
}

func TestReconcileCancelsOnlyMismatched(t *testing.T) {
	exchange := newFakeExchange(0, 0)
	exchange.offers = []Offer{
		{ID: 1, Symbol: "fUSD", Amount: 300, Rate: 0.0005, Period: 30},
		{ID: 2, Symbol: "fUSD", Amount: 300, Rate: 0.0004, Period: 7},
	}
	r := NewReconciler(exchange, exchange, testFunding(), zap.NewNop())

	res, err := r.Reconcile(context.Background(), testCurrency(), Target{Rate: 0.0005, Period: 30}, exchange.offers)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(exchange.canceled) != 1 || exchange.canceled[0] != 2 {
		t.Fatalf("expected only offer 2 canceled, got %v", exchange.canceled)
	}
	if res.Canceled != 1 {
		t.Fatalf("expected 1 cancel, got %+v", res)
	}
}

func TestReconcileRateOnlyMatching(t *testing.T) {
	exchange := newFakeExchange(0, 0)
	exchange.offers = []Offer{
		{ID: 1, Symbol: "fUSD", Amount: 300, Rate: 0.0005, Period: 7},
	}
	cfg := testCurrency()
	off := false
	cfg.MatchPeriod = &off
	r := NewReconciler(exchange, exchange, testFunding(), zap.NewNop())

	res, err := r.Reconcile(context.Background(), cfg, Target{Rate: 0.0005, Period: 30}, exchange.offers)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(exchange.canceled) != 0 || res.Canceled != 0 {
		t.Fatalf("rate-only matching should keep the offer, got %v", exchange.canceled)
	}
}

func TestReconcileSplitsAvailableBalance(t *testing.T) {
	exchange := newFakeExchange(750, 750)
	r := NewReconciler(exchange, exchange, testFunding(), zap.NewNop())

	target := Target{Rate: 0.0005, Period: 30}
	res, err := r.Reconcile(context.Background(), testCurrency(), target, nil)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if res.Submitted != 3 {
		t.Fatalf("expected 3 submits, got %+v", res)
	}
	for _, req := range exchange.submitted {
		if req.Symbol != "fUSD" || req.Rate != 0.0005 || req.Period != 30 {
			t.Fatalf("unexpected request %+v", req)
		}
	}
	if exchange.submitted[2].Amount != 150 {
		t.Fatalf("expected final chunk of 150, got %+v", exchange.submitted[2])
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	exchange := newFakeExchange(750, 750)
	r := NewReconciler(exchange, exchange, testFunding(), zap.NewNop())
	target := Target{Rate: 0.0005, Period: 30}

	if _, err := r.Reconcile(context.Background(), testCurrency(), target, nil); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	active, err := exchange.ActiveOffers(context.Background(), "fUSD")
	if err != nil {
		t.Fatalf("offers failed: %v", err)
	}

	res, err := r.Reconcile(context.Background(), testCurrency(), target, active)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if res.Canceled != 0 || res.Submitted != 0 {
		t.Fatalf("second run should be a no-op, got %+v", res)
	}
}

func TestReconcileAbsorbsRemainder(t *testing.T) {
	exchange := newFakeExchange(400, 100)
	exchange.offers = []Offer{
		{ID: 7, Symbol: "fUSD", Amount: 300, Rate: 0.0005, Period: 30},
	}
	r := NewReconciler(exchange, exchange, testFunding(), zap.NewNop())
	target := Target{Rate: 0.0005, Period: 30}

	res, err := r.Reconcile(context.Background(), testCurrency(), target, exchange.offers)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if res.Skipped != 1 {
		t.Fatalf("expected the 100 chunk to be skipped, got %+v", res)
	}
	if len(exchange.canceled) != 1 || exchange.canceled[0] != 7 {
		t.Fatalf("expected the surviving offer to be recombined, got %v", exchange.canceled)
	}
	if len(exchange.submitted) != 1 || exchange.submitted[0].Amount != 400 {
		t.Fatalf("expected one combined 400 offer, got %+v", exchange.submitted)
	}
}

func TestReconcileSkipsExchangeRejection(t *testing.T) {
	exchange := newFakeExchange(120, 120)
	exchange.rejectBelow = 150
	funding := testFunding()
	funding.MinOfferAmount = 0
	r := NewReconciler(exchange, exchange, funding, zap.NewNop())

	res, err := r.Reconcile(context.Background(), testCurrency(), Target{Rate: 0.0005, Period: 30}, nil)
	if err != nil {
		t.Fatalf("rejection should not fail the pass: %v", err)
	}
	if res.Skipped != 1 || res.Submitted != 0 {
		t.Fatalf("expected one skipped submit, got %+v", res)
	}
}
