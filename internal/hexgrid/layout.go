package hexgrid

import "fmt"

// StartCoord is where new and prestiged players are placed.
var StartCoord = Coord{Q: 3, R: 3}

// referenceLayout is indexed [r][q].
var referenceLayout = [DefaultSize][DefaultSize]string{
	{"forest", "forest", "plains", "mountain", "plains", "forest", "forest"},
	{"forest", "plains", "village", "plains", "goldvein", "plains", "mountain"},
	{"plains", "swamp", "plains", "plains", "plains", "ruins", "plains"},
	{"mountain", "plains", "plains", "village", "plains", "plains", "forest"},
	{"plains", "ruins", "lake", "plains", "swamp", "plains", "plains"},
	{"forest", "plains", "plains", "goldvein", "plains", "village", "plains"},
	{"mountain", "forest", "plains", "plains", "plains", "forest", "mountain"},
}

// Placement is one seeded tile.
type Placement struct {
	Coord
	Type string `json:"type"`
}

// ReferenceLayout returns the hand-made 7×7 map in row-major order.
func ReferenceLayout() []Placement {
	out := make([]Placement, 0, DefaultSize*DefaultSize)
	for r := 0; r < DefaultSize; r++ {
		for q := 0; q < DefaultSize; q++ {
			out = append(out, Placement{Coord: Coord{Q: q, R: r}, Type: referenceLayout[r][q]})
		}
	}
	return out
}

// ValidateLayout checks that a layout covers the grid exactly once.
func (g Grid) ValidateLayout(tiles []Placement) error {
	seen := make(map[Coord]struct{}, len(tiles))
	for _, t := range tiles {
		if !g.InBounds(t.Coord) {
			return fmt.Errorf("tile %s outside %dx%d grid", t.Coord, g.Size, g.Size)
		}
		if _, dup := seen[t.Coord]; dup {
			return fmt.Errorf("tile %s listed twice", t.Coord)
		}
		seen[t.Coord] = struct{}{}
	}
	if len(seen) != g.Size*g.Size {
		return fmt.Errorf("layout has %d tiles, grid needs %d", len(seen), g.Size*g.Size)
	}
	return nil
}
