package funder

import (
	"math"

	"bfx-lend-bot/internal/config"
)

const rateDecimals = 6

// TargetRate derives the offer rate from the currency policy and the two
// market signals. bbr may be -Inf when the order book gave no usable level;
// it then drops out of the comparison. The result is truncated, not rounded,
// so the bot never asks above what the signals support.
func TargetRate(cfg config.CurrencyConfig, frr, bbr float64) float64 {
	rate := frr + cfg.FRROffset
	if !math.IsInf(bbr, -1) && bbr > rate {
		rate = bbr
	}
	if rate < cfg.MinRate {
		rate = cfg.MinRate
	}
	return truncateRate(rate)
}

// TargetPeriod maps the target rate onto the currency's period curve: the
// first threshold the rate clears wins. Curves are kept sorted from the
// highest threshold down at load time. A rate below every threshold falls
// back to the currency's minimum period.
func TargetPeriod(cfg config.CurrencyConfig, rate float64) int {
	for _, pt := range cfg.PeriodCurve {
		if rate >= pt.Rate {
			return pt.Period
		}
	}
	return cfg.MinPeriod
}

func truncateRate(rate float64) float64 {
	scale := math.Pow10(rateDecimals)
	return math.Trunc(rate*scale) / scale
}
