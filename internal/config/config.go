package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration lets yaml configs write durations as "15m" or "120h". Bare
// numbers are taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration: %v", raw)
	}
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	REST       RESTConfig       `yaml:"rest"`
	State      StateConfig      `yaml:"state"`
	Funding    FundingConfig    `yaml:"funding"`
	Currencies []CurrencyConfig `yaml:"currencies"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Timescale  TimescaleConfig  `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	PublicBaseURL  string   `yaml:"public_base_url"`
	PrivateBaseURL string   `yaml:"private_base_url"`
	Timeout        Duration `yaml:"timeout"`
}

type StateConfig struct {
	SQLitePath string   `yaml:"sqlite_path"`
	IdleTTL    Duration `yaml:"idle_ttl"`
}

// FundingConfig carries exchange-wide offer limits and the tick cadence.
type FundingConfig struct {
	TickInterval   Duration      `yaml:"tick_interval"`
	MaxOfferAmount float64       `yaml:"max_offer_amount"`
	MinOfferAmount float64       `yaml:"min_offer_amount"`
	BookPrecision  string        `yaml:"book_precision"`
	BookLength     int           `yaml:"book_length"`
}

// CurrencyConfig is the per-currency lending policy: a fixed set of named
// numeric curves supplied at startup, never discovered at runtime.
type CurrencyConfig struct {
	Name          string            `yaml:"name"`
	FRROffset     float64           `yaml:"frr_offset"`
	MinRate       float64           `yaml:"min_rate"`
	MinPeriod     int               `yaml:"min_period"`
	PeriodCurve   []PeriodThreshold `yaml:"period_curve"`
	FRRSource     string            `yaml:"frr_source"`
	Book          BookConfig        `yaml:"book"`
	IdleAlert     IdleAlertConfig   `yaml:"idle_alert"`
	MatchPeriod   *bool             `yaml:"match_period"`
	FoldRemainder bool              `yaml:"fold_remainder"`
}

type PeriodThreshold struct {
	Rate   float64 `yaml:"rate"`
	Period int     `yaml:"period"`
}

type BookConfig struct {
	MinCumulativeAsk float64 `yaml:"min_cumulative_ask"`
	WeightByCount    bool    `yaml:"weight_by_count"`
}

type IdleAlertConfig struct {
	Threshold    float64  `yaml:"threshold"`
	Window       Duration `yaml:"window"`
	ExtendStreak bool     `yaml:"extend_streak"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.PublicBaseURL == "" {
		cfg.REST.PublicBaseURL = "https://api-pub.bitfinex.com"
	}
	if cfg.REST.PrivateBaseURL == "" {
		cfg.REST.PrivateBaseURL = "https://api.bitfinex.com"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = Duration(10 * time.Second)
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/bfx-lend-bot.db"
	}
	if cfg.State.IdleTTL == 0 {
		cfg.State.IdleTTL = Duration(90 * 24 * time.Hour)
	}
	if cfg.Funding.TickInterval == 0 {
		cfg.Funding.TickInterval = Duration(15 * time.Minute)
	}
	if cfg.Funding.MaxOfferAmount == 0 {
		cfg.Funding.MaxOfferAmount = 300
	}
	if cfg.Funding.MinOfferAmount == 0 {
		cfg.Funding.MinOfferAmount = 150
	}
	if cfg.Funding.BookPrecision == "" {
		cfg.Funding.BookPrecision = "P0"
	}
	if cfg.Funding.BookLength == 0 {
		cfg.Funding.BookLength = 100
	}
	for i := range cfg.Currencies {
		cur := &cfg.Currencies[i]
		cur.Name = strings.ToUpper(strings.TrimSpace(cur.Name))
		if cur.MinPeriod == 0 {
			cur.MinPeriod = 2
		}
		if cur.FRRSource == "" {
			cur.FRRSource = "ticker"
		}
		// First match wins during the period lookup, so keep the curve
		// ordered from the highest rate threshold down.
		sort.SliceStable(cur.PeriodCurve, func(a, b int) bool {
			return cur.PeriodCurve[a].Rate > cur.PeriodCurve[b].Rate
		})
	}
}

func validate(cfg *Config) error {
	if len(cfg.Currencies) == 0 {
		return errors.New("at least one currency is required")
	}
	seen := make(map[string]struct{}, len(cfg.Currencies))
	for _, cur := range cfg.Currencies {
		if cur.Name == "" {
			return errors.New("currency name is required")
		}
		if _, dup := seen[cur.Name]; dup {
			return fmt.Errorf("duplicate currency %s", cur.Name)
		}
		seen[cur.Name] = struct{}{}
		if cur.MinRate < 0 {
			return fmt.Errorf("%s: min_rate must be >= 0", cur.Name)
		}
		if cur.MinPeriod < 2 || cur.MinPeriod > 120 {
			return fmt.Errorf("%s: min_period must be in [2,120]", cur.Name)
		}
		for _, pt := range cur.PeriodCurve {
			if pt.Period < 2 || pt.Period > 120 {
				return fmt.Errorf("%s: period_curve period %d out of [2,120]", cur.Name, pt.Period)
			}
		}
		if cur.FRRSource != "ticker" && cur.FRRSource != "stats" {
			return fmt.Errorf("%s: frr_source must be ticker or stats", cur.Name)
		}
		if cur.IdleAlert.Threshold < 0 {
			return fmt.Errorf("%s: idle_alert.threshold must be >= 0", cur.Name)
		}
	}
	if cfg.Funding.MaxOfferAmount <= 0 {
		return errors.New("funding.max_offer_amount must be > 0")
	}
	if cfg.Funding.MinOfferAmount < 0 {
		return errors.New("funding.min_offer_amount must be >= 0")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return errors.New("metrics.listen is required when metrics are enabled")
	}
	return nil
}

// MatchPeriodEnabled reports whether an active offer must match the target
// period as well as the rate to survive the cancel phase. Defaults to true.
func (c CurrencyConfig) MatchPeriodEnabled() bool {
	if c.MatchPeriod == nil {
		return true
	}
	return *c.MatchPeriod
}

// Symbol returns the funding symbol for the currency, e.g. fUSD.
func (c CurrencyConfig) Symbol() string {
	return "f" + c.Name
}
