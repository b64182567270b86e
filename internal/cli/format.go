package cli

import (
	"fmt"
	"time"

	"hexidle/internal/economy"
	"hexidle/internal/game"

	"github.com/shopspring/decimal"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// FormatAmount renders a balance the way the game UI shows it: one decimal
// below a thousand, then K/M/B suffixes with two decimals.
func FormatAmount(d decimal.Decimal) string {
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(2) + "K"
	default:
		return d.StringFixed(1)
	}
}

func FormatRate(d decimal.Decimal) string {
	return FormatAmount(d) + "/s"
}

// Interpolate projects a synced view forward by elapsed using its
// effective rates. It is display only; the server stays authoritative.
func Interpolate(view game.PlayerView, elapsed time.Duration) economy.Resources {
	if elapsed <= 0 {
		return view.Resources
	}
	secs := decimal.NewFromFloat(elapsed.Seconds())
	return view.Resources.Add(view.Rates.Scale(secs))
}

func FormatResources(r economy.Resources) string {
	return fmt.Sprintf("gold %s  wood %s  stone %s", FormatAmount(r.Gold), FormatAmount(r.Wood), FormatAmount(r.Stone))
}
