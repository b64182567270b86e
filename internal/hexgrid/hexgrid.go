// Package hexgrid is the fixed N×N offset hex map: odd rows are shifted
// right by half a tile, q is the column and r the row.
package hexgrid

import "fmt"

// DefaultSize is the edge length of the reference map.
const DefaultSize = 7

// Coord addresses one tile.
type Coord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Q, c.R)
}

var (
	oddRowDirections = [6]Coord{
		{Q: 1, R: 0}, {Q: -1, R: 0},
		{Q: 0, R: -1}, {Q: 1, R: -1},
		{Q: 0, R: 1}, {Q: 1, R: 1},
	}
	evenRowDirections = [6]Coord{
		{Q: 1, R: 0}, {Q: -1, R: 0},
		{Q: 0, R: -1}, {Q: -1, R: -1},
		{Q: 0, R: 1}, {Q: -1, R: 1},
	}
)

// Grid is a square map of Size×Size tiles.
type Grid struct {
	Size int
}

// New returns a grid of the given edge length.
func New(size int) Grid {
	return Grid{Size: size}
}

// InBounds reports whether c lies inside [0, Size) on both axes.
func (g Grid) InBounds(c Coord) bool {
	return c.Q >= 0 && c.Q < g.Size && c.R >= 0 && c.R < g.Size
}

// Neighbors returns the in-bounds tiles one step from c. Interior tiles have
// six; edges and corners fewer. The order is stable.
func (g Grid) Neighbors(c Coord) []Coord {
	dirs := evenRowDirections
	if c.R%2 != 0 {
		dirs = oddRowDirections
	}
	out := make([]Coord, 0, len(dirs))
	for _, d := range dirs {
		n := Coord{Q: c.Q + d.Q, R: c.R + d.R}
		if g.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// Adjacent reports whether b is one step from a. A tile is not adjacent to itself.
func (g Grid) Adjacent(a, b Coord) bool {
	for _, n := range g.Neighbors(a) {
		if n == b {
			return true
		}
	}
	return false
}

// Coords lists every tile in row-major order.
func (g Grid) Coords() []Coord {
	out := make([]Coord, 0, g.Size*g.Size)
	for r := 0; r < g.Size; r++ {
		for q := 0; q < g.Size; q++ {
			out = append(out, Coord{Q: q, R: r})
		}
	}
	return out
}
