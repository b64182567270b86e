// Package catalog holds the static tile and upgrade tables. A Catalog is
// validated once when built and never mutated afterwards, so it is safe to
// share between goroutines without locking.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"hexidle/internal/economy"

	"github.com/goccy/go-yaml"
	"github.com/shopspring/decimal"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

type Catalog struct {
	tiles        map[string]TileType
	upgrades     map[string]Upgrade
	upgradeOrder []string
	tileOrder    []string
}

// Default returns the built-in reference catalogs.
func Default() *Catalog {
	c, err := New(defaultTiles(), defaultUpgrades())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// New validates and indexes the given tables.
func New(tiles []TileType, upgrades []Upgrade) (*Catalog, error) {
	c := &Catalog{
		tiles:    make(map[string]TileType, len(tiles)),
		upgrades: make(map[string]Upgrade, len(upgrades)),
	}
	for _, t := range tiles {
		t.Type = strings.TrimSpace(t.Type)
		if t.Type == "" {
			return nil, fmt.Errorf("%w: tile type is empty", ErrInvalidCatalog)
		}
		if _, dup := c.tiles[t.Type]; dup {
			return nil, fmt.Errorf("%w: tile type %q defined twice", ErrInvalidCatalog, t.Type)
		}
		if t.Bonus.IsNegative() {
			return nil, fmt.Errorf("%w: tile %q has a negative bonus", ErrInvalidCatalog, t.Type)
		}
		if t.Label == "" {
			t.Label = t.Type
		}
		c.tiles[t.Type] = t
		c.tileOrder = append(c.tileOrder, t.Type)
	}
	for _, u := range upgrades {
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			return nil, fmt.Errorf("%w: upgrade id is empty", ErrInvalidCatalog)
		}
		if _, dup := c.upgrades[u.ID]; dup {
			return nil, fmt.Errorf("%w: upgrade %q defined twice", ErrInvalidCatalog, u.ID)
		}
		if u.Cost.IsNegative() || u.Effect.IsNegative() {
			return nil, fmt.Errorf("%w: upgrade %q has a negative cost or effect", ErrInvalidCatalog, u.ID)
		}
		if u.MaxQuantity < 0 {
			return nil, fmt.Errorf("%w: upgrade %q has a negative max quantity", ErrInvalidCatalog, u.ID)
		}
		if u.Name == "" {
			u.Name = u.ID
		}
		c.upgrades[u.ID] = u
	}
	if err := c.checkPrerequisites(); err != nil {
		return nil, err
	}

	c.upgradeOrder = make([]string, 0, len(c.upgrades))
	for id := range c.upgrades {
		c.upgradeOrder = append(c.upgradeOrder, id)
	}
	sort.Slice(c.upgradeOrder, func(i, j int) bool {
		a, b := c.upgrades[c.upgradeOrder[i]], c.upgrades[c.upgradeOrder[j]]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if !a.Cost.Gold.Equal(b.Cost.Gold) {
			return a.Cost.Gold.LessThan(b.Cost.Gold)
		}
		return a.ID < b.ID
	})
	return c, nil
}

// checkPrerequisites rejects unknown prerequisites and any cycle, including
// an upgrade that requires itself. Prerequisites may branch.
func (c *Catalog) checkPrerequisites() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(c.upgrades))
	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: prerequisite cycle %s", ErrInvalidCatalog, strings.Join(append(path, id), " -> "))
		}
		state[id] = visiting
		if req := c.upgrades[id].Requires; req != "" {
			if _, ok := c.upgrades[req]; !ok {
				return fmt.Errorf("%w: upgrade %q requires unknown upgrade %q", ErrInvalidCatalog, id, req)
			}
			if err := visit(req, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	ids := make([]string, 0, len(c.upgrades))
	for id := range c.upgrades {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return err
		}
	}
	return nil
}

// Tile looks up a tile type.
func (c *Catalog) Tile(tileType string) (TileType, bool) {
	t, ok := c.tiles[tileType]
	return t, ok
}

// Bonus returns the accrual bonus of a tile type. Unknown types yield the
// zero vector rather than an error: bonuses are best effort.
func (c *Catalog) Bonus(tileType string) economy.Resources {
	t, ok := c.tiles[tileType]
	if !ok {
		return economy.Zero
	}
	return t.Bonus
}

// Passable reports whether a tile type may be travelled to. Unknown types
// are not passable.
func (c *Catalog) Passable(tileType string) bool {
	t, ok := c.tiles[tileType]
	return ok && !t.Impassable
}

// Tiles lists tile types in definition order.
func (c *Catalog) Tiles() []TileType {
	out := make([]TileType, 0, len(c.tileOrder))
	for _, k := range c.tileOrder {
		out = append(out, c.tiles[k])
	}
	return out
}

// Upgrade looks up an upgrade definition.
func (c *Catalog) Upgrade(id string) (Upgrade, bool) {
	u, ok := c.upgrades[id]
	return u, ok
}

// Upgrades lists upgrades by category, then gold cost.
func (c *Catalog) Upgrades() []Upgrade {
	out := make([]Upgrade, 0, len(c.upgradeOrder))
	for _, id := range c.upgradeOrder {
		out = append(out, c.upgrades[id])
	}
	return out
}

// amount is parsed from the scalar's text so file values never round-trip
// through float64.
type amount decimal.Decimal

func (a *amount) UnmarshalYAML(raw []byte) error {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"'`)
	switch s {
	case "", "~", "null":
		*a = amount(decimal.Zero)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("amount %q: %w", s, err)
	}
	*a = amount(d)
	return nil
}

type fileAmounts struct {
	Gold  amount `yaml:"gold"`
	Wood  amount `yaml:"wood"`
	Stone amount `yaml:"stone"`
}

func (a fileAmounts) resources() economy.Resources {
	return economy.Resources{
		Gold:  decimal.Decimal(a.Gold),
		Wood:  decimal.Decimal(a.Wood),
		Stone: decimal.Decimal(a.Stone),
	}
}

type fileTile struct {
	Type        string      `yaml:"type"`
	Label       string      `yaml:"label"`
	Description string      `yaml:"description"`
	Bonus       fileAmounts `yaml:"bonus"`
	Impassable  bool        `yaml:"impassable"`
}

type fileUpgrade struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Category    string      `yaml:"category"`
	Cost        fileAmounts `yaml:"cost"`
	Effect      fileAmounts `yaml:"effect"`
	Requires    string      `yaml:"requires"`
	MaxQuantity int         `yaml:"max_quantity"`
}

type fileCatalog struct {
	Tiles    []fileTile    `yaml:"tiles"`
	Upgrades []fileUpgrade `yaml:"upgrades"`
}

// Parse builds a catalog from YAML. A section that is absent falls back to
// the built-in table.
func Parse(raw []byte) (*Catalog, error) {
	var f fileCatalog
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	tiles := defaultTiles()
	if len(f.Tiles) > 0 {
		tiles = make([]TileType, 0, len(f.Tiles))
		for _, t := range f.Tiles {
			tiles = append(tiles, TileType{
				Type:        t.Type,
				Label:       t.Label,
				Description: t.Description,
				Bonus:       t.Bonus.resources(),
				Impassable:  t.Impassable,
			})
		}
	}
	upgrades := defaultUpgrades()
	if len(f.Upgrades) > 0 {
		upgrades = make([]Upgrade, 0, len(f.Upgrades))
		for _, u := range f.Upgrades {
			upgrades = append(upgrades, Upgrade{
				ID:          u.ID,
				Name:        u.Name,
				Description: u.Description,
				Category:    u.Category,
				Cost:        u.Cost.resources(),
				Effect:      u.Effect.resources(),
				Requires:    u.Requires,
				MaxQuantity: u.MaxQuantity,
			})
		}
	}
	return New(tiles, upgrades)
}

// Load reads path if set, otherwise returns the built-in catalogs.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(raw)
}
