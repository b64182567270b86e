// Package economy holds the resource vector type and the accrual engine.
// Everything here is pure: no clocks, no I/O.
package economy

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOfflineCap bounds how much elapsed time a single settlement may pay out.
const DefaultOfflineCap = 24 * time.Hour

// PrestigeStep is the multiplier gained per prestige level.
var PrestigeStep = decimal.RequireFromString("0.5")

// PrestigeMultiplier returns 1 + level*0.5. Negative levels are treated as zero.
func PrestigeMultiplier(level int) decimal.Decimal {
	if level < 0 {
		level = 0
	}
	return decimal.NewFromInt(1).Add(PrestigeStep.Mul(decimal.NewFromInt(int64(level))))
}

// ClampElapsed converts the interval between last and now into payable
// seconds: never negative, never above limit. A non-positive limit disables
// the cap.
func ClampElapsed(last, now time.Time, limit time.Duration) decimal.Decimal {
	d := now.Sub(last)
	if d < 0 {
		d = 0
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return decimal.New(d.Microseconds(), -6)
}

// EffectiveRates is (base + tileBonus) * multiplier per resource.
func EffectiveRates(base, tileBonus Resources, multiplier decimal.Decimal) Resources {
	return base.Add(tileBonus).Scale(multiplier)
}

// Accrue returns the resource deltas owed for elapsedSeconds at the given
// rates. Negative inputs contribute nothing, so a delta is never negative.
func Accrue(elapsedSeconds decimal.Decimal, base, tileBonus Resources, multiplier decimal.Decimal) Resources {
	if elapsedSeconds.IsNegative() {
		elapsedSeconds = decimal.Zero
	}
	rates := EffectiveRates(base, tileBonus, multiplier)
	return Resources{
		Gold:  nonNegative(rates.Gold.Mul(elapsedSeconds)),
		Wood:  nonNegative(rates.Wood.Mul(elapsedSeconds)),
		Stone: nonNegative(rates.Stone.Mul(elapsedSeconds)),
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
