// Package sqlitestore implements game.Store on a single SQLite file for
// single-node deployments. Per-player exclusion comes from an in-process
// keyed lock; write transactions start IMMEDIATE so concurrent writers for
// different players wait on the busy timeout instead of failing on upgrade.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hexidle/internal/economy"
	"hexidle/internal/game"
	"hexidle/internal/hexgrid"
	"hexidle/internal/keylock"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	player_id     TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS player_state (
	player_id      TEXT PRIMARY KEY REFERENCES accounts(player_id) ON DELETE CASCADE,
	gold           TEXT NOT NULL,
	wood           TEXT NOT NULL,
	stone          TEXT NOT NULL,
	gold_per_sec   TEXT NOT NULL,
	wood_per_sec   TEXT NOT NULL,
	stone_per_sec  TEXT NOT NULL,
	prestige_level INTEGER NOT NULL DEFAULT 0,
	tile_q         INTEGER NOT NULL,
	tile_r         INTEGER NOT NULL,
	last_tick_at   INTEGER NOT NULL,
	last_move_at   INTEGER
);

CREATE TABLE IF NOT EXISTS player_upgrades (
	player_id  TEXT NOT NULL REFERENCES accounts(player_id) ON DELETE CASCADE,
	upgrade_id TEXT NOT NULL,
	quantity   INTEGER NOT NULL CHECK (quantity >= 1),
	PRIMARY KEY (player_id, upgrade_id)
);

CREATE TABLE IF NOT EXISTS map_tiles (
	q    INTEGER NOT NULL,
	r    INTEGER NOT NULL,
	type TEXT NOT NULL,
	PRIMARY KEY (q, r)
);

CREATE INDEX IF NOT EXISTS idx_player_state_rank ON player_state(prestige_level DESC);
`

type Store struct {
	db          *sqlx.DB
	locks       *keylock.Locker
	lockTimeout time.Duration
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, lockTimeout time.Duration) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: conn, locks: keylock.New(), lockTimeout: lockTimeout}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type playerRow struct {
	PlayerID      string        `db:"player_id"`
	Username      string        `db:"username"`
	Gold          string        `db:"gold"`
	Wood          string        `db:"wood"`
	Stone         string        `db:"stone"`
	GoldPerSec    string        `db:"gold_per_sec"`
	WoodPerSec    string        `db:"wood_per_sec"`
	StonePerSec   string        `db:"stone_per_sec"`
	PrestigeLevel int           `db:"prestige_level"`
	TileQ         int           `db:"tile_q"`
	TileR         int           `db:"tile_r"`
	LastTickAt    int64         `db:"last_tick_at"`
	LastMoveAt    sql.NullInt64 `db:"last_move_at"`
}

func rowFromState(p game.PlayerState) playerRow {
	r := playerRow{
		PlayerID:      p.PlayerID,
		Username:      p.Username,
		Gold:          p.Balance.Gold.String(),
		Wood:          p.Balance.Wood.String(),
		Stone:         p.Balance.Stone.String(),
		GoldPerSec:    p.Rates.Gold.String(),
		WoodPerSec:    p.Rates.Wood.String(),
		StonePerSec:   p.Rates.Stone.String(),
		PrestigeLevel: p.PrestigeLevel,
		TileQ:         p.Tile.Q,
		TileR:         p.Tile.R,
		LastTickAt:    p.LastTickAt.UnixMicro(),
	}
	if !p.LastMoveAt.IsZero() {
		r.LastMoveAt = sql.NullInt64{Int64: p.LastMoveAt.UnixMicro(), Valid: true}
	}
	return r
}

func (r playerRow) state() (game.PlayerState, error) {
	p := game.PlayerState{
		PlayerID:      r.PlayerID,
		Username:      r.Username,
		PrestigeLevel: r.PrestigeLevel,
		Tile:          hexgrid.Coord{Q: r.TileQ, R: r.TileR},
		LastTickAt:    time.UnixMicro(r.LastTickAt).UTC(),
	}
	if r.LastMoveAt.Valid {
		p.LastMoveAt = time.UnixMicro(r.LastMoveAt.Int64).UTC()
	}
	var err error
	if p.Balance, err = parseResources(r.Gold, r.Wood, r.Stone); err != nil {
		return game.PlayerState{}, err
	}
	if p.Rates, err = parseResources(r.GoldPerSec, r.WoodPerSec, r.StonePerSec); err != nil {
		return game.PlayerState{}, err
	}
	return p, nil
}

func (s *Store) WithPlayer(ctx context.Context, playerID string, fn func(tx game.PlayerTx) error) error {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	unlock, err := s.locks.Lock(lockCtx, playerID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: player %s is busy: %v", game.ErrTransient, playerID, err)
	}
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	var row playerRow
	err = tx.GetContext(ctx, &row, `
		SELECT ps.player_id, a.username, ps.gold, ps.wood, ps.stone,
		       ps.gold_per_sec, ps.wood_per_sec, ps.stone_per_sec,
		       ps.prestige_level, ps.tile_q, ps.tile_r, ps.last_tick_at, ps.last_move_at
		FROM player_state ps
		JOIN accounts a ON a.player_id = ps.player_id
		WHERE ps.player_id = ?
	`, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return game.ErrPlayerNotFound
	}
	if err != nil {
		return classify(err)
	}
	p, err := row.state()
	if err != nil {
		return err
	}

	if err := fn(&playerTx{tx: tx, state: p}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

func (s *Store) CreatePlayer(ctx context.Context, np game.NewPlayer) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT COUNT(1) FROM accounts WHERE player_id = ?`, np.PlayerID)
	if err != nil {
		return classify(err)
	}
	if exists > 0 {
		return game.ErrPlayerExists
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (player_id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, np.PlayerID, np.Username, np.PasswordHash, time.Now().UnixMicro())
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return game.ErrUsernameTaken
		}
		return classify(err)
	}

	st := np.State
	st.PlayerID = np.PlayerID
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO player_state (
			player_id, gold, wood, stone, gold_per_sec, wood_per_sec, stone_per_sec,
			prestige_level, tile_q, tile_r, last_tick_at, last_move_at
		) VALUES (
			:player_id, :gold, :wood, :stone, :gold_per_sec, :wood_per_sec, :stone_per_sec,
			:prestige_level, :tile_q, :tile_r, :last_tick_at, :last_move_at
		)
	`, rowFromState(st))
	if err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

func (s *Store) Credentials(ctx context.Context, username string) (game.Credentials, error) {
	c := game.Credentials{Username: username}
	row := s.db.QueryRowxContext(ctx, `SELECT player_id, password_hash FROM accounts WHERE username = ?`, username)
	if err := row.Scan(&c.PlayerID, &c.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.Credentials{}, game.ErrPlayerNotFound
		}
		return game.Credentials{}, classify(err)
	}
	return c, nil
}

type tileRow struct {
	Q    int    `db:"q"`
	R    int    `db:"r"`
	Type string `db:"type"`
}

func (s *Store) Tiles(ctx context.Context) ([]game.MapTile, error) {
	var rows []tileRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT q, r, type FROM map_tiles ORDER BY r, q`); err != nil {
		return nil, classify(err)
	}
	out := make([]game.MapTile, 0, len(rows))
	for _, r := range rows {
		out = append(out, game.MapTile{Coord: hexgrid.Coord{Q: r.Q, R: r.R}, Type: r.Type})
	}
	return out, nil
}

func (s *Store) SeedTiles(ctx context.Context, tiles []game.MapTile) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, classify(err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(1) FROM map_tiles`); err != nil {
		return false, classify(err)
	}
	if count > 0 {
		return false, nil
	}
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO map_tiles (q, r, type) VALUES (?, ?, ?)`)
	if err != nil {
		return false, classify(err)
	}
	defer stmt.Close()
	for _, t := range tiles {
		if _, err := stmt.ExecContext(ctx, t.Q, t.R, t.Type); err != nil {
			return false, classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, classify(err)
	}
	return true, nil
}

func (s *Store) Occupants(ctx context.Context) ([]game.Occupant, error) {
	var rows []struct {
		Username string `db:"username"`
		Q        int    `db:"tile_q"`
		R        int    `db:"tile_r"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.username, ps.tile_q, ps.tile_r
		FROM player_state ps
		JOIN accounts a ON a.player_id = ps.player_id
	`)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]game.Occupant, 0, len(rows))
	for _, r := range rows {
		out = append(out, game.Occupant{Username: r.Username, Tile: hexgrid.Coord{Q: r.Q, R: r.R}})
	}
	return out, nil
}

// Leaderboard sorts gold in Go: balances are stored as decimal text, which
// SQLite would compare lexically.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]game.RankedPlayer, error) {
	var rows []struct {
		Username      string `db:"username"`
		Gold          string `db:"gold"`
		GoldPerSec    string `db:"gold_per_sec"`
		PrestigeLevel int    `db:"prestige_level"`
		Q             int    `db:"tile_q"`
		R             int    `db:"tile_r"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.username, ps.gold, ps.gold_per_sec, ps.prestige_level, ps.tile_q, ps.tile_r
		FROM player_state ps
		JOIN accounts a ON a.player_id = ps.player_id
	`)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]game.RankedPlayer, 0, len(rows))
	for _, r := range rows {
		gold, err := decimal.NewFromString(r.Gold)
		if err != nil {
			return nil, fmt.Errorf("parse gold: %w", err)
		}
		rate, err := decimal.NewFromString(r.GoldPerSec)
		if err != nil {
			return nil, fmt.Errorf("parse gold_per_sec: %w", err)
		}
		out = append(out, game.RankedPlayer{
			Username:      r.Username,
			Gold:          gold,
			GoldPerSec:    rate,
			PrestigeLevel: r.PrestigeLevel,
			Tile:          hexgrid.Coord{Q: r.Q, R: r.R},
		})
	}
	sortRanked(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

type playerTx struct {
	tx    *sqlx.Tx
	state game.PlayerState
}

func (t *playerTx) Player() game.PlayerState { return t.state }

func (t *playerTx) TileAt(ctx context.Context, c hexgrid.Coord) (game.MapTile, bool, error) {
	tile := game.MapTile{Coord: c}
	err := t.tx.GetContext(ctx, &tile.Type, `SELECT type FROM map_tiles WHERE q = ? AND r = ?`, c.Q, c.R)
	if errors.Is(err, sql.ErrNoRows) {
		return game.MapTile{}, false, nil
	}
	if err != nil {
		return game.MapTile{}, false, err
	}
	return tile, true, nil
}

func (t *playerTx) Upgrades(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		ID       string `db:"upgrade_id"`
		Quantity int    `db:"quantity"`
	}
	if err := t.tx.SelectContext(ctx, &rows, `SELECT upgrade_id, quantity FROM player_upgrades WHERE player_id = ?`, t.state.PlayerID); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Quantity
	}
	return out, nil
}

func (t *playerTx) SavePlayer(ctx context.Context, p game.PlayerState) error {
	if p.PlayerID != t.state.PlayerID {
		return fmt.Errorf("sqlitestore: cannot save player %s inside unit of work for %s", p.PlayerID, t.state.PlayerID)
	}
	_, err := t.tx.NamedExecContext(ctx, `
		UPDATE player_state
		SET gold = :gold, wood = :wood, stone = :stone,
		    gold_per_sec = :gold_per_sec, wood_per_sec = :wood_per_sec, stone_per_sec = :stone_per_sec,
		    prestige_level = :prestige_level, tile_q = :tile_q, tile_r = :tile_r,
		    last_tick_at = :last_tick_at, last_move_at = :last_move_at
		WHERE player_id = :player_id
	`, rowFromState(p))
	if err != nil {
		return err
	}
	p.Username = t.state.Username
	t.state = p
	return nil
}

func (t *playerTx) IncrementUpgrade(ctx context.Context, upgradeID string) (int, error) {
	var qty int
	err := t.tx.GetContext(ctx, &qty, `
		INSERT INTO player_upgrades (player_id, upgrade_id, quantity)
		VALUES (?, ?, 1)
		ON CONFLICT (player_id, upgrade_id) DO UPDATE SET quantity = quantity + 1
		RETURNING quantity
	`, t.state.PlayerID, upgradeID)
	return qty, err
}

func (t *playerTx) ClearUpgrades(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM player_upgrades WHERE player_id = ?`, t.state.PlayerID)
	return err
}

func parseResources(gold, wood, stone string) (economy.Resources, error) {
	var (
		r   economy.Resources
		err error
	)
	if r.Gold, err = decimal.NewFromString(gold); err != nil {
		return r, fmt.Errorf("parse gold: %w", err)
	}
	if r.Wood, err = decimal.NewFromString(wood); err != nil {
		return r, fmt.Errorf("parse wood: %w", err)
	}
	if r.Stone, err = decimal.NewFromString(stone); err != nil {
		return r, fmt.Errorf("parse stone: %w", err)
	}
	return r, nil
}

func isConstraint(err error, code int) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == code
}

// classify maps SQLITE_BUSY and SQLITE_LOCKED to game.ErrTransient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", game.ErrTransient, err)
		}
	}
	return err
}
