package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"bfx-lend-bot/internal/account"
	"bfx-lend-bot/internal/alerts"
	"bfx-lend-bot/internal/bfx/rest"
	"bfx-lend-bot/internal/config"
	"bfx-lend-bot/internal/exec"
	"bfx-lend-bot/internal/funder"
	"bfx-lend-bot/internal/market"
	"bfx-lend-bot/internal/metrics"
	"bfx-lend-bot/internal/state"
	"bfx-lend-bot/internal/state/sqlite"
	"bfx-lend-bot/internal/timescale"
)

// App owns the wiring: transport, exchange clients, the lending controller
// and its collaborators, plus the optional metrics and timescale sidecars.
type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *sqlite.Store
	rest       *rest.Client
	account    *account.Client
	alerts     *alerts.Telegram
	controller *funder.Controller
	timescale  *timescale.Writer
	metricsSrv *http.Server
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	apiKey := strings.TrimSpace(os.Getenv("BFX_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("BFX_API_KEY is required")
	}
	apiSecret := strings.TrimSpace(os.Getenv("BFX_API_SECRET"))
	if apiSecret == "" {
		return nil, errors.New("BFX_API_SECRET is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	restClient := rest.New(cfg.REST.PublicBaseURL, cfg.REST.PrivateBaseURL, apiKey, apiSecret, cfg.REST.Timeout.Std(), log)
	accountClient := account.New(restClient, log)
	signals := market.NewReader(restClient, cfg.Funding, log)

	m := metrics.NewNoop()
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: prom.Handler()}
	}

	alertSink := alerts.NewTelegram(cfg.Telegram, log)
	executor := exec.New(accountClient, m, log)
	reader := &exchangeReader{account: accountClient}
	monitor := funder.NewMonitor(&seriesStore{store: store}, alertSink, m, cfg.State.IdleTTL.Std(), log)
	reconciler := funder.NewReconciler(reader, executor, cfg.Funding, log)

	tsWriter, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale init: %w", err)
	}
	var recorder funder.TickRecorder
	if tsWriter != nil {
		recorder = tsWriter
	}

	controller := funder.NewController(reader, signals, monitor, reconciler, recorder, m, cfg.Currencies, log)

	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		rest:       restClient,
		account:    accountClient,
		alerts:     alertSink,
		controller: controller,
		timescale:  tsWriter,
		metricsSrv: metricsSrv,
	}, nil
}

// Run drives the lending loop until the context is canceled. The first tick
// fires immediately so a restart converges without waiting a full interval.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.timescale.Close()
	a.timescale.Start(ctx)
	a.startMetrics(ctx)

	if err := a.tick(ctx); err != nil {
		a.log.Warn("tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(a.cfg.Funding.TickInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				a.log.Warn("tick failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single tick and exits, for cron-style deployments.
func (a *App) RunOnce(ctx context.Context) error {
	defer a.store.Close()
	defer a.timescale.Close()
	a.timescale.Start(ctx)
	return a.tick(ctx)
}

func (a *App) tick(ctx context.Context) error {
	err := a.controller.RunTick(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		if alertErr := a.alerts.Publish(ctx, "tick failed: "+err.Error()); alertErr != nil {
			a.log.Warn("tick failure alert not delivered", zap.Error(alertErr))
		}
	}
	return err
}

func (a *App) startMetrics(ctx context.Context) {
	if a.metricsSrv == nil {
		return
	}
	go func() {
		a.log.Info("metrics server listening", zap.String("addr", a.metricsSrv.Addr))
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(shutdownCtx)
	}()
}

// exchangeReader narrows the account client to what the controller needs.
type exchangeReader struct {
	account *account.Client
}

func (r *exchangeReader) FundingWallet(ctx context.Context, currency string) (funder.Wallet, bool, error) {
	w, ok, err := r.account.FundingWallet(ctx, currency)
	if err != nil || !ok {
		return funder.Wallet{}, ok, err
	}
	return funder.Wallet{
		Currency:         w.Currency,
		BalanceTotal:     w.Balance,
		BalanceAvailable: w.Available,
	}, true, nil
}

func (r *exchangeReader) ActiveOffers(ctx context.Context, symbol string) ([]funder.Offer, error) {
	offers, err := r.account.ActiveOffers(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]funder.Offer, 0, len(offers))
	for _, o := range offers {
		out = append(out, funder.Offer{
			ID:     o.ID,
			Symbol: o.Symbol,
			Amount: o.Amount,
			Rate:   o.Rate,
			Period: o.Period,
		})
	}
	return out, nil
}

// seriesStore binds the idle series codec to the kv store.
type seriesStore struct {
	store state.Store
}

func (s *seriesStore) Load(ctx context.Context, currency string) ([]state.IdleSample, error) {
	return state.LoadIdleSeries(ctx, s.store, currency)
}

func (s *seriesStore) Save(ctx context.Context, currency string, samples []state.IdleSample) error {
	return state.SaveIdleSeries(ctx, s.store, currency, samples)
}
