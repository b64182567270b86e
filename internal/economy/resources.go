package economy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Resource names one of the three accrued currencies.
type Resource string

const (
	Gold  Resource = "gold"
	Wood  Resource = "wood"
	Stone Resource = "stone"
)

// All lists resources in display order.
var All = []Resource{Gold, Wood, Stone}

// Resources is a gold/wood/stone vector. It is used for balances, costs,
// per-second rates and tile bonuses alike.
type Resources struct {
	Gold  decimal.Decimal `json:"gold"`
	Wood  decimal.Decimal `json:"wood"`
	Stone decimal.Decimal `json:"stone"`
}

// Zero is the all-zero vector.
var Zero = Resources{Gold: decimal.Zero, Wood: decimal.Zero, Stone: decimal.Zero}

// NewResources builds a vector from float literals. Only meant for static
// tables; values go through their shortest decimal representation.
func NewResources(gold, wood, stone float64) Resources {
	return Resources{
		Gold:  decimal.NewFromFloat(gold),
		Wood:  decimal.NewFromFloat(wood),
		Stone: decimal.NewFromFloat(stone),
	}
}

func (r Resources) Get(res Resource) decimal.Decimal {
	switch res {
	case Gold:
		return r.Gold
	case Wood:
		return r.Wood
	case Stone:
		return r.Stone
	default:
		return decimal.Zero
	}
}

func (r Resources) Add(o Resources) Resources {
	return Resources{Gold: r.Gold.Add(o.Gold), Wood: r.Wood.Add(o.Wood), Stone: r.Stone.Add(o.Stone)}
}

func (r Resources) Sub(o Resources) Resources {
	return Resources{Gold: r.Gold.Sub(o.Gold), Wood: r.Wood.Sub(o.Wood), Stone: r.Stone.Sub(o.Stone)}
}

// Scale multiplies every component by f.
func (r Resources) Scale(f decimal.Decimal) Resources {
	return Resources{Gold: r.Gold.Mul(f), Wood: r.Wood.Mul(f), Stone: r.Stone.Mul(f)}
}

// IsZero reports whether every component is zero.
func (r Resources) IsZero() bool {
	return r.Gold.IsZero() && r.Wood.IsZero() && r.Stone.IsZero()
}

// IsNegative reports whether any component is below zero.
func (r Resources) IsNegative() bool {
	return r.Gold.IsNegative() || r.Wood.IsNegative() || r.Stone.IsNegative()
}

// Equal compares numerically, so 1.0 equals 1.
func (r Resources) Equal(o Resources) bool {
	return r.Gold.Equal(o.Gold) && r.Wood.Equal(o.Wood) && r.Stone.Equal(o.Stone)
}

// Shortfall returns the first resource in display order for which have is
// strictly below r. ok is false when have covers every component.
func (r Resources) Shortfall(have Resources) (res Resource, ok bool) {
	for _, name := range All {
		if have.Get(name).LessThan(r.Get(name)) {
			return name, true
		}
	}
	return "", false
}

// Truncated drops the fractional part of every component. Display only.
func (r Resources) Truncated() Resources {
	return Resources{Gold: r.Gold.Truncate(0), Wood: r.Wood.Truncate(0), Stone: r.Stone.Truncate(0)}
}

func (r Resources) String() string {
	return fmt.Sprintf("gold=%s wood=%s stone=%s", r.Gold, r.Wood, r.Stone)
}
