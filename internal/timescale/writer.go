package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"bfx-lend-bot/internal/config"
	"bfx-lend-bot/internal/funder"
)

const writeTimeout = 3 * time.Second

// Writer streams per-currency tick snapshots into TimescaleDB for offline
// analysis. Writes are queued and flushed by a background goroutine so a
// slow database never stalls the lending loop. A nil *Writer is a valid
// no-op, which is what a disabled config produces.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	ticks   chan funder.TickSnapshot
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		ticks:  make(chan funder.TickSnapshot, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// RecordTick queues a snapshot without blocking. When the queue is full the
// snapshot is dropped and the first drop is logged.
func (w *Writer) RecordTick(snapshot funder.TickSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.ticks <- snapshot:
		return
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale tick queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.ticks:
			w.writeTick(ctx, snap)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		currency TEXT NOT NULL,
		balance_total DOUBLE PRECISION NOT NULL,
		balance_available DOUBLE PRECISION NOT NULL,
		balance_idle DOUBLE PRECISION NOT NULL,
		frr DOUBLE PRECISION NOT NULL,
		bbr DOUBLE PRECISION NOT NULL,
		target_rate DOUBLE PRECISION NOT NULL,
		target_period INTEGER NOT NULL,
		offers_canceled INTEGER NOT NULL,
		offers_submitted INTEGER NOT NULL
	)`, w.table("funding_ticks"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("funding_ticks"))); err != nil && w.log != nil {
		w.log.Warn("timescale funding_ticks hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeTick(ctx context.Context, snap funder.TickSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, currency, balance_total, balance_available, balance_idle,
		frr, bbr, target_rate, target_period, offers_canceled, offers_submitted
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	)`, w.table("funding_ticks"))
	// bbr is -Inf when the book gave no signal; store -1 so downstream
	// aggregates never have to handle infinities.
	bbr := snap.BBR
	if math.IsInf(bbr, -1) {
		bbr = -1
	}
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Currency,
		snap.BalanceTotal,
		snap.BalanceAvailable,
		snap.BalanceIdle,
		snap.FRR,
		bbr,
		snap.TargetRate,
		snap.TargetPeriod,
		snap.OffersCanceled,
		snap.OffersSubmitted,
	); err != nil && w.log != nil {
		w.log.Warn("timescale tick insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
