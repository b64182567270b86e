package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hexidle/internal/economy"

	"github.com/shopspring/decimal"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if got := len(c.Tiles()); got != 8 {
		t.Fatalf("tile types=%d want 8", got)
	}
	if got := len(c.Upgrades()); got != 7 {
		t.Fatalf("upgrades=%d want 7", got)
	}
	if c.Passable("lake") {
		t.Fatalf("lake must be impassable")
	}
	for _, tt := range []string{"plains", "forest", "mountain", "goldvein", "swamp", "ruins", "village"} {
		if !c.Passable(tt) {
			t.Fatalf("%s should be passable", tt)
		}
	}
	u, ok := c.Upgrade("iron_pickaxe")
	if !ok {
		t.Fatalf("iron_pickaxe missing")
	}
	if u.Requires != "wooden_pickaxe" || u.MaxQuantity != 1 {
		t.Fatalf("unexpected iron_pickaxe %+v", u)
	}
}

func TestBonusFallsBackToZero(t *testing.T) {
	c := Default()
	if !c.Bonus("no-such-tile").IsZero() {
		t.Fatalf("unknown tile must have zero bonus")
	}
	if c.Passable("no-such-tile") {
		t.Fatalf("unknown tile must not be passable")
	}
	want := economy.NewResources(1.2, 0, 0.1)
	if got := c.Bonus("goldvein"); !got.Equal(want) {
		t.Fatalf("goldvein bonus got %v want %v", got, want)
	}
}

func TestUpgradesOrder(t *testing.T) {
	got := Default().Upgrades()
	want := []string{
		"wooden_pickaxe", "iron_pickaxe", "gold_mine",
		"stone_chisel", "quarry",
		"hand_axe", "lumber_camp",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d upgrades", len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("index %d got %s want %s", i, got[i].ID, want[i])
		}
	}
}

func TestNewRejectsBadPrerequisites(t *testing.T) {
	one := economy.NewResources(1, 0, 0)
	tests := []struct {
		name     string
		upgrades []Upgrade
	}{
		{
			name:     "self",
			upgrades: []Upgrade{{ID: "a", Cost: one, Effect: one, Requires: "a"}},
		},
		{
			name: "cycle",
			upgrades: []Upgrade{
				{ID: "a", Cost: one, Effect: one, Requires: "c"},
				{ID: "b", Cost: one, Effect: one, Requires: "a"},
				{ID: "c", Cost: one, Effect: one, Requires: "b"},
			},
		},
		{
			name:     "unknown",
			upgrades: []Upgrade{{ID: "a", Cost: one, Effect: one, Requires: "ghost"}},
		},
		{
			name: "duplicate",
			upgrades: []Upgrade{
				{ID: "a", Cost: one, Effect: one},
				{ID: "a", Cost: one, Effect: one},
			},
		},
		{
			name:     "negative cost",
			upgrades: []Upgrade{{ID: "a", Cost: economy.Resources{Gold: decimal.NewFromInt(-1)}, Effect: one}},
		},
	}
	for _, tc := range tests {
		if _, err := New(defaultTiles(), tc.upgrades); !errors.Is(err, ErrInvalidCatalog) {
			t.Fatalf("%s: expected ErrInvalidCatalog, got %v", tc.name, err)
		}
	}
}

func TestNewAcceptsBranchingPrerequisites(t *testing.T) {
	one := economy.NewResources(1, 0, 0)
	_, err := New(defaultTiles(), []Upgrade{
		{ID: "root", Cost: one, Effect: one},
		{ID: "left", Cost: one, Effect: one, Requires: "root"},
		{ID: "right", Cost: one, Effect: one, Requires: "root"},
		{ID: "leaf", Cost: one, Effect: one, Requires: "left"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := []byte(`
upgrades:
  - id: shovel
    name: Shovel
    category: gold
    cost: {gold: 5}
    effect: {gold: 0.25}
    max_quantity: 2
  - id: dredge
    category: gold
    cost: {gold: 50, stone: 10}
    effect: {gold: 1.5}
    requires: shovel
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Tiles()) != 8 {
		t.Fatalf("tiles should fall back to built-in table")
	}
	d, ok := c.Upgrade("dredge")
	if !ok {
		t.Fatalf("dredge missing")
	}
	if !d.Effect.Gold.Equal(decimal.RequireFromString("1.5")) || !d.Cost.Stone.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected dredge %+v", d)
	}
	if d.Name != "dredge" {
		t.Fatalf("name should default to id, got %q", d.Name)
	}
	if _, ok := c.Upgrade("wooden_pickaxe"); ok {
		t.Fatalf("override should replace the upgrade table")
	}
}

func TestParseKeepsDecimalPrecision(t *testing.T) {
	c, err := Parse([]byte(`
upgrades:
  - id: sieve
    category: gold
    cost: {gold: "2.5", wood: 3}
    effect: {gold: 0.12345678901234567890}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	u, ok := c.Upgrade("sieve")
	if !ok {
		t.Fatalf("sieve missing")
	}
	if want := decimal.RequireFromString("0.12345678901234567890"); !u.Effect.Gold.Equal(want) {
		t.Fatalf("effect gold = %s, want %s", u.Effect.Gold, want)
	}
	if !u.Cost.Gold.Equal(decimal.RequireFromString("2.5")) || !u.Cost.Wood.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected cost %s", u.Cost)
	}
	if !u.Cost.Stone.IsZero() {
		t.Fatalf("absent stone cost should be zero, got %s", u.Cost.Stone)
	}
}

func TestParseRejectsBadAmount(t *testing.T) {
	_, err := Parse([]byte(`
upgrades:
  - {id: a, cost: {gold: lots}}
`))
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	c, err := Load("  ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := c.Upgrade("quarry"); !ok {
		t.Fatalf("expected built-in catalog")
	}
}

func TestParseRejectsCycle(t *testing.T) {
	_, err := Parse([]byte(`
upgrades:
  - {id: a, requires: b}
  - {id: b, requires: a}
`))
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}
