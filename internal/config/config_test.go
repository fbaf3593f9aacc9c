package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{
		Currencies: []CurrencyConfig{{Name: "USD"}},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.REST.PublicBaseURL != "https://api-pub.bitfinex.com" {
		t.Fatalf("unexpected public base url %q", cfg.REST.PublicBaseURL)
	}
	if cfg.REST.Timeout.Std() != 10*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.REST.Timeout)
	}
	if cfg.State.IdleTTL.Std() != 90*24*time.Hour {
		t.Fatalf("unexpected idle ttl %v", cfg.State.IdleTTL)
	}
	if cfg.Funding.MaxOfferAmount != 300 {
		t.Fatalf("unexpected max offer amount %v", cfg.Funding.MaxOfferAmount)
	}
	if cfg.Funding.MinOfferAmount != 150 {
		t.Fatalf("unexpected min offer amount %v", cfg.Funding.MinOfferAmount)
	}
	if cfg.Currencies[0].MinPeriod != 2 {
		t.Fatalf("unexpected min period %d", cfg.Currencies[0].MinPeriod)
	}
	if cfg.Currencies[0].FRRSource != "ticker" {
		t.Fatalf("unexpected frr source %q", cfg.Currencies[0].FRRSource)
	}
}

func TestValidateRequiresCurrencies(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for empty currency list")
	}
}

func TestValidateRejectsDuplicateCurrency(t *testing.T) {
	cfg := &Config{Currencies: []CurrencyConfig{{Name: "usd"}, {Name: "USD"}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for duplicate currency")
	}
}

func TestValidateRejectsBadPeriodCurve(t *testing.T) {
	cfg := &Config{Currencies: []CurrencyConfig{{
		Name:        "USD",
		PeriodCurve: []PeriodThreshold{{Rate: 0.0006, Period: 121}},
	}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for period out of range")
	}
}

func TestValidateRejectsUnknownFRRSource(t *testing.T) {
	cfg := &Config{Currencies: []CurrencyConfig{{Name: "USD", FRRSource: "candles"}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown frr source")
	}
}

func TestMatchPeriodDefaultsTrue(t *testing.T) {
	cur := CurrencyConfig{Name: "USD"}
	if !cur.MatchPeriodEnabled() {
		t.Fatalf("expected match period to default to true")
	}
	off := false
	cur.MatchPeriod = &off
	if cur.MatchPeriodEnabled() {
		t.Fatalf("expected match period override to apply")
	}
}

func TestSymbol(t *testing.T) {
	cur := CurrencyConfig{Name: "GBP"}
	if got := cur.Symbol(); got != "fGBP" {
		t.Fatalf("expected fGBP, got %s", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := `
log:
  level: debug
currencies:
  - name: usd
    frr_offset: -0.000025
    min_rate: 0.0003
    period_curve:
      - {rate: 0.0006, period: 120}
      - {rate: 0.0005, period: 30}
      - {rate: 0.0004, period: 7}
    idle_alert:
      threshold: 200
      window: 120h
`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level %q", cfg.Log.Level)
	}
	if cfg.Currencies[0].Name != "USD" {
		t.Fatalf("expected currency normalized to USD, got %q", cfg.Currencies[0].Name)
	}
	if cfg.Currencies[0].IdleAlert.Window.Std() != 120*time.Hour {
		t.Fatalf("unexpected idle window %v", cfg.Currencies[0].IdleAlert.Window)
	}
	if len(cfg.Currencies[0].PeriodCurve) != 3 {
		t.Fatalf("unexpected period curve %v", cfg.Currencies[0].PeriodCurve)
	}
}
