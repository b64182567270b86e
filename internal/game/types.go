package game

import (
	"time"

	"hexidle/internal/economy"
	"hexidle/internal/hexgrid"

	"github.com/shopspring/decimal"
)

// PlayerState is the persisted row. Balances and rates are exact decimals.
type PlayerState struct {
	PlayerID      string
	Username      string
	Balance       economy.Resources
	Rates         economy.Resources
	PrestigeLevel int
	Tile          hexgrid.Coord
	LastTickAt    time.Time
	LastMoveAt    time.Time
}

// Multiplier is derived from the level, never stored independently.
func (p PlayerState) Multiplier() decimal.Decimal {
	return economy.PrestigeMultiplier(p.PrestigeLevel)
}

// MapTile is one seeded tile row.
type MapTile = hexgrid.Placement

// NewPlayer is a registration request. PasswordHash is empty for players
// whose credentials live with an external identity provider.
type NewPlayer struct {
	PlayerID     string
	Username     string
	PasswordHash string
	State        PlayerState
}

type Credentials struct {
	PlayerID     string
	Username     string
	PasswordHash string
}

// Occupant is a player standing on a tile.
type Occupant struct {
	Username string
	Tile     hexgrid.Coord
}

// RankedPlayer is the raw leaderboard row returned by a store, already in
// rank order.
type RankedPlayer struct {
	Username      string
	Gold          decimal.Decimal
	GoldPerSec    decimal.Decimal
	PrestigeLevel int
	Tile          hexgrid.Coord
}

type PlayerView struct {
	PlayerID           string            `json:"player_id"`
	Username           string            `json:"username"`
	Resources          economy.Resources `json:"resources"`
	Rates              economy.Resources `json:"rates"`
	BaseRates          economy.Resources `json:"base_rates"`
	PrestigeLevel      int               `json:"prestige_level"`
	PrestigeMultiplier decimal.Decimal   `json:"prestige_multiplier"`
	TileQ              int               `json:"tile_q"`
	TileR              int               `json:"tile_r"`
	TileType           string            `json:"tile_type"`
	TileLabel          string            `json:"tile_label"`
	TileBonus          economy.Resources `json:"tile_bonus"`
	Upgrades           map[string]int    `json:"upgrades"`
	Neighbors          []hexgrid.Coord   `json:"neighbors"`
	LastTickAt         time.Time         `json:"last_tick_at"`
	LastMoveAt         time.Time         `json:"last_move_at"`
	MoveReadyInSeconds int64             `json:"move_ready_in_seconds"`
	CanPrestige        bool              `json:"can_prestige"`
}

type UpgradeView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Cost        economy.Resources `json:"cost"`
	Effect      economy.Resources `json:"effect"`
	Requires    string            `json:"requires,omitempty"`
	MaxQuantity int               `json:"max_quantity,omitempty"`
	Owned       int               `json:"owned"`
	Unlocked    bool              `json:"unlocked"`
	Affordable  bool              `json:"affordable"`
}

type MapTileView struct {
	Q          int               `json:"q"`
	R          int               `json:"r"`
	Type       string            `json:"type"`
	Label      string            `json:"label"`
	Bonus      economy.Resources `json:"bonus"`
	Impassable bool              `json:"impassable"`
	Players    []string          `json:"players"`
}

type MapView struct {
	Size  int           `json:"size"`
	Tiles []MapTileView `json:"tiles"`
}

type LeaderboardRow struct {
	Rank          int64           `json:"rank"`
	Username      string          `json:"username"`
	Gold          decimal.Decimal `json:"gold"`
	PrestigeLevel int             `json:"prestige_level"`
	GoldPerSec    decimal.Decimal `json:"gold_per_sec"`
}

// Event is published after a move or prestige commits.
type Event struct {
	Type          string        `json:"type"`
	Username      string        `json:"username"`
	From          hexgrid.Coord `json:"from"`
	To            hexgrid.Coord `json:"to"`
	PrestigeLevel int           `json:"prestige_level,omitempty"`
	At            time.Time     `json:"at"`
}

const (
	EventMoved     = "moved"
	EventPrestiged = "prestiged"
)
