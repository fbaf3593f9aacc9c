package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bfx-lend-bot/internal/bfx/rest"

	"go.uber.org/zap"
)

const (
	WalletTypeFunding = "funding"

	OfferTypeLimit = "LIMIT"

	OfferStatusActive          = "ACTIVE"
	OfferStatusExecuted        = "EXECUTED"
	OfferStatusPartiallyFilled = "PARTIALLY FILLED"
	OfferStatusCanceled        = "CANCELED"
)

// ErrOfferBelowMinimum marks the exchange's structured rejection of an offer
// whose amount is under the per-symbol minimum. Callers may skip the offer
// and continue; every other rejection is fatal for the current run.
var ErrOfferBelowMinimum = errors.New("offer amount below exchange minimum")

type Wallet struct {
	Type      string
	Currency  string
	Balance   float64
	Available float64
}

type Offer struct {
	ID        int64
	Symbol    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Amount    float64
	Type      string
	Status    string
	Rate      float64
	Period    int
}

type OfferRequest struct {
	Type   string
	Symbol string
	Amount float64
	Rate   float64
	Period int
}

// Client wraps the authenticated funding endpoints.
type Client struct {
	rest *rest.Client
	log  *zap.Logger
}

func New(restClient *rest.Client, log *zap.Logger) *Client {
	return &Client{rest: restClient, log: log}
}

func (c *Client) Wallets(ctx context.Context) ([]Wallet, error) {
	payload, err := c.rest.PostPrivate(ctx, "v2/auth/r/wallets", nil)
	if err != nil {
		return nil, err
	}
	rows, ok := toSlice(payload)
	if !ok {
		return nil, fmt.Errorf("unexpected wallets payload: %T", payload)
	}
	wallets := make([]Wallet, 0, len(rows))
	for _, raw := range rows {
		row, ok := toSlice(raw)
		if !ok {
			continue
		}
		wallet, err := parseWallet(row)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	return wallets, nil
}

// FundingWallet returns the funding wallet for a currency; the second return
// is false when the account holds no funding wallet for it.
func (c *Client) FundingWallet(ctx context.Context, currency string) (Wallet, bool, error) {
	wallets, err := c.Wallets(ctx)
	if err != nil {
		return Wallet{}, false, err
	}
	for _, w := range wallets {
		if w.Type == WalletTypeFunding && strings.EqualFold(w.Currency, currency) {
			return w, true, nil
		}
	}
	return Wallet{}, false, nil
}

func (c *Client) ActiveOffers(ctx context.Context, symbol string) ([]Offer, error) {
	payload, err := c.rest.PostPrivate(ctx, "v2/auth/r/funding/offers/"+symbol, nil)
	if err != nil {
		return nil, err
	}
	rows, ok := toSlice(payload)
	if !ok {
		return nil, fmt.Errorf("unexpected offers payload: %T", payload)
	}
	offers := make([]Offer, 0, len(rows))
	for _, raw := range rows {
		row, ok := toSlice(raw)
		if !ok {
			continue
		}
		offer, err := parseOffer(row)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (c *Client) SubmitOffer(ctx context.Context, req OfferRequest) error {
	if req.Type == "" {
		req.Type = OfferTypeLimit
	}
	body := map[string]any{
		"type":   req.Type,
		"symbol": req.Symbol,
		"amount": strconv.FormatFloat(req.Amount, 'f', -1, 64),
		"rate":   strconv.FormatFloat(req.Rate, 'f', -1, 64),
		"period": req.Period,
	}
	payload, err := c.rest.PostPrivate(ctx, "v2/auth/w/funding/offer/submit", body)
	if err != nil {
		return err
	}
	if err := checkNotification(payload); err != nil {
		if errors.Is(err, ErrOfferBelowMinimum) {
			return err
		}
		return fmt.Errorf("submit funding offer %s: %w", req.Symbol, err)
	}
	c.log.Info("submitted funding offer",
		zap.String("symbol", req.Symbol),
		zap.Float64("amount", req.Amount),
		zap.Float64("rate", req.Rate),
		zap.Int("period", req.Period),
	)
	return nil
}

func (c *Client) CancelOffer(ctx context.Context, id int64) error {
	payload, err := c.rest.PostPrivate(ctx, "v2/auth/w/funding/offer/cancel", map[string]any{"id": id})
	if err != nil {
		return err
	}
	if err := checkNotification(payload); err != nil {
		return fmt.Errorf("cancel funding offer %d: %w", id, err)
	}
	c.log.Info("canceled funding offer", zap.Int64("offer_id", id))
	return nil
}

func parseWallet(row []any) (Wallet, error) {
	if len(row) < 5 {
		return Wallet{}, fmt.Errorf("wallet row too short: %d fields", len(row))
	}
	balance, ok := floatAt(row, 2)
	if !ok {
		return Wallet{}, errors.New("wallet balance is not numeric")
	}
	available, ok := floatAt(row, 4)
	if !ok {
		return Wallet{}, errors.New("wallet available balance is not numeric")
	}
	return Wallet{
		Type:      stringAt(row, 0),
		Currency:  stringAt(row, 1),
		Balance:   balance,
		Available: available,
	}, nil
}

func parseOffer(row []any) (Offer, error) {
	if len(row) < 16 {
		return Offer{}, fmt.Errorf("offer row too short: %d fields", len(row))
	}
	id, ok := intAt(row, 0)
	if !ok {
		return Offer{}, errors.New("offer id is not numeric")
	}
	amount, ok := floatAt(row, 4)
	if !ok {
		return Offer{}, errors.New("offer amount is not numeric")
	}
	rate, ok := floatAt(row, 14)
	if !ok {
		return Offer{}, errors.New("offer rate is not numeric")
	}
	period, ok := intAt(row, 15)
	if !ok {
		return Offer{}, errors.New("offer period is not numeric")
	}
	return Offer{
		ID:        id,
		Symbol:    stringAt(row, 1),
		CreatedAt: timeAt(row, 2),
		UpdatedAt: timeAt(row, 3),
		Amount:    amount,
		Type:      stringAt(row, 6),
		Status:    stringAt(row, 10),
		Rate:      rate,
		Period:    int(period),
	}, nil
}

// checkNotification inspects a write-endpoint notification array
// [mts, type, msgID, null, payload, code, status, text] and maps the
// below-minimum rejection to ErrOfferBelowMinimum.
func checkNotification(payload any) error {
	row, ok := toSlice(payload)
	if !ok {
		return fmt.Errorf("unexpected notification payload: %T", payload)
	}
	if stringAt(row, 0) == "error" {
		text := stringAt(row, 2)
		if isBelowMinimumText(text) {
			return fmt.Errorf("%w: %s", ErrOfferBelowMinimum, text)
		}
		return fmt.Errorf("exchange error: %s", text)
	}
	status := stringAt(row, 6)
	if status == "SUCCESS" {
		return nil
	}
	text := stringAt(row, 7)
	if isBelowMinimumText(text) {
		return fmt.Errorf("%w: %s", ErrOfferBelowMinimum, text)
	}
	return fmt.Errorf("exchange status %s: %s", status, text)
}

func isBelowMinimumText(text string) bool {
	return strings.HasPrefix(text, "Invalid offer: incorrect amount, minimum is")
}
