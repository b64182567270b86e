package game

import (
	"context"

	"hexidle/internal/hexgrid"
)

// Store is the persistence port. Implementations must serialize WithPlayer
// calls for the same player id while letting different ids run in parallel.
type Store interface {
	// WithPlayer loads the player's row under an exclusive lock and runs fn.
	// Writes made through tx commit only if fn returns nil. fn may be
	// invoked more than once when the store retries a serialization failure,
	// so it must not have effects outside tx. Unknown ids fail with
	// ErrPlayerNotFound; lock timeouts with ErrTransient.
	WithPlayer(ctx context.Context, playerID string, fn func(tx PlayerTx) error) error

	// CreatePlayer inserts the account and its state row atomically.
	// Fails with ErrUsernameTaken or ErrPlayerExists.
	CreatePlayer(ctx context.Context, p NewPlayer) error
	Credentials(ctx context.Context, username string) (Credentials, error)

	Tiles(ctx context.Context) ([]MapTile, error)
	// SeedTiles inserts tiles only when the map is empty.
	SeedTiles(ctx context.Context, tiles []MapTile) (bool, error)

	Occupants(ctx context.Context) ([]Occupant, error)
	// Leaderboard orders by prestige level desc, then gold desc.
	Leaderboard(ctx context.Context, limit int) ([]RankedPlayer, error)

	Ping(ctx context.Context) error
}

// PlayerTx is a locked unit of work on one player.
type PlayerTx interface {
	Player() PlayerState
	// TileAt reports ok=false when no tile is seeded at c.
	TileAt(ctx context.Context, c hexgrid.Coord) (tile MapTile, ok bool, err error)
	Upgrades(ctx context.Context) (map[string]int, error)
	SavePlayer(ctx context.Context, p PlayerState) error
	// IncrementUpgrade adds one to the owned quantity, creating the record at 1.
	IncrementUpgrade(ctx context.Context, upgradeID string) (int, error)
	ClearUpgrades(ctx context.Context) error
}

// EventSink receives committed map events.
type EventSink interface {
	Publish(ev Event)
}

// Observer receives operation outcomes and settlement sizes. outcome is
// "ok" or a Kind name.
type Observer interface {
	ObserveOperation(op, outcome string, seconds float64)
	ObserveSettle(elapsedSeconds float64)
}
