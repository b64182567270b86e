// Package pgstore implements game.Store on PostgreSQL. A player's unit of
// work is one transaction holding SELECT ... FOR UPDATE on the state row, so
// two requests for the same player serialize in the database and requests
// for different players never touch the same lock.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hexidle/internal/economy"
	"hexidle/internal/game"
	"hexidle/internal/hexgrid"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	db          *pgxpool.Pool
	log         *slog.Logger
	lockTimeout time.Duration
}

func New(db *pgxpool.Pool, lockTimeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger, lockTimeout: lockTimeout}
}

func (s *Store) WithPlayer(ctx context.Context, playerID string, fn func(tx game.PlayerTx) error) error {
	const maxAttempts = 5
	retryDelay := 50 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.withPlayerOnce(ctx, playerID, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return classify(err)
		}
		if attempt == maxAttempts-1 {
			return classify(err)
		}
		s.log.Debug("retrying player transaction", "player_id", playerID, "attempt", attempt+1, "err", err)
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 800*time.Millisecond {
			retryDelay *= 2
		}
	}
	return game.ErrTransient
}

func (s *Store) withPlayerOnce(ctx context.Context, playerID string, fn func(tx game.PlayerTx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if stmt := lockTimeoutStatement(s.lockTimeout); stmt != "" {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	p, err := scanPlayer(tx.QueryRow(ctx, `
		SELECT ps.player_id, a.username,
		       ps.gold::text, ps.wood::text, ps.stone::text,
		       ps.gold_per_sec::text, ps.wood_per_sec::text, ps.stone_per_sec::text,
		       ps.prestige_level, ps.tile_q, ps.tile_r, ps.last_tick_at, ps.last_move_at
		FROM game.player_state ps
		JOIN users.accounts a ON a.player_id = ps.player_id
		WHERE ps.player_id = $1
		FOR UPDATE OF ps
	`, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.ErrPlayerNotFound
		}
		return err
	}

	if err := fn(&playerTx{tx: tx, state: p}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreatePlayer(ctx context.Context, np game.NewPlayer) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO users.accounts (player_id, username, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id) DO NOTHING
	`, np.PlayerID, np.Username, np.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return game.ErrUsernameTaken
		}
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrPlayerExists
	}

	st := np.State
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.player_state (
			player_id, gold, wood, stone, gold_per_sec, wood_per_sec, stone_per_sec,
			prestige_level, tile_q, tile_r, last_tick_at, last_move_at
		)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12)
	`, np.PlayerID,
		st.Balance.Gold.String(), st.Balance.Wood.String(), st.Balance.Stone.String(),
		st.Rates.Gold.String(), st.Rates.Wood.String(), st.Rates.Stone.String(),
		st.PrestigeLevel, st.Tile.Q, st.Tile.R, st.LastTickAt, nullTime(st.LastMoveAt)); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

func (s *Store) Credentials(ctx context.Context, username string) (game.Credentials, error) {
	c := game.Credentials{Username: username}
	err := s.db.QueryRow(ctx, `
		SELECT player_id, password_hash
		FROM users.accounts
		WHERE username = $1
	`, username).Scan(&c.PlayerID, &c.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Credentials{}, game.ErrPlayerNotFound
	}
	if err != nil {
		return game.Credentials{}, classify(err)
	}
	return c, nil
}

func (s *Store) Tiles(ctx context.Context) ([]game.MapTile, error) {
	rows, err := s.db.Query(ctx, `SELECT q, r, type FROM game.map_tiles ORDER BY r, q`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []game.MapTile
	for rows.Next() {
		var t game.MapTile
		if err := rows.Scan(&t.Q, &t.R, &t.Type); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, classify(rows.Err())
}

// SeedTiles takes an exclusive table lock so two booting servers cannot
// both observe an empty map.
func (s *Store) SeedTiles(ctx context.Context, tiles []game.MapTile) (bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, classify(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `LOCK TABLE game.map_tiles IN EXCLUSIVE MODE`); err != nil {
		return false, classify(err)
	}
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(1) FROM game.map_tiles`).Scan(&count); err != nil {
		return false, classify(err)
	}
	if count > 0 {
		return false, nil
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"game", "map_tiles"},
		[]string{"q", "r", "type"},
		pgx.CopyFromSlice(len(tiles), func(i int) ([]any, error) {
			return []any{tiles[i].Q, tiles[i].R, tiles[i].Type}, nil
		}),
	)
	if err != nil {
		return false, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, classify(err)
	}
	return true, nil
}

func (s *Store) Occupants(ctx context.Context) ([]game.Occupant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.username, ps.tile_q, ps.tile_r
		FROM game.player_state ps
		JOIN users.accounts a ON a.player_id = ps.player_id
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []game.Occupant
	for rows.Next() {
		var o game.Occupant
		if err := rows.Scan(&o.Username, &o.Tile.Q, &o.Tile.R); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, classify(rows.Err())
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]game.RankedPlayer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.username, ps.gold::text, ps.gold_per_sec::text, ps.prestige_level, ps.tile_q, ps.tile_r
		FROM game.player_state ps
		JOIN users.accounts a ON a.player_id = ps.player_id
		ORDER BY ps.prestige_level DESC, ps.gold DESC, a.username ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []game.RankedPlayer
	for rows.Next() {
		var (
			r          game.RankedPlayer
			gold, rate string
		)
		if err := rows.Scan(&r.Username, &gold, &rate, &r.PrestigeLevel, &r.Tile.Q, &r.Tile.R); err != nil {
			return nil, err
		}
		if r.Gold, err = decimal.NewFromString(gold); err != nil {
			return nil, fmt.Errorf("parse gold: %w", err)
		}
		if r.GoldPerSec, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse gold_per_sec: %w", err)
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.Ping(ctx))
}

type playerTx struct {
	tx    pgx.Tx
	state game.PlayerState
}

func (t *playerTx) Player() game.PlayerState { return t.state }

func (t *playerTx) TileAt(ctx context.Context, c hexgrid.Coord) (game.MapTile, bool, error) {
	tile := game.MapTile{Coord: c}
	err := t.tx.QueryRow(ctx, `SELECT type FROM game.map_tiles WHERE q = $1 AND r = $2`, c.Q, c.R).Scan(&tile.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.MapTile{}, false, nil
	}
	if err != nil {
		return game.MapTile{}, false, err
	}
	return tile, true, nil
}

func (t *playerTx) Upgrades(ctx context.Context) (map[string]int, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT upgrade_id, quantity
		FROM game.player_upgrades
		WHERE player_id = $1
	`, t.state.PlayerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

func (t *playerTx) SavePlayer(ctx context.Context, p game.PlayerState) error {
	if p.PlayerID != t.state.PlayerID {
		return fmt.Errorf("pgstore: cannot save player %s inside unit of work for %s", p.PlayerID, t.state.PlayerID)
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE game.player_state
		SET gold = $2::numeric, wood = $3::numeric, stone = $4::numeric,
		    gold_per_sec = $5::numeric, wood_per_sec = $6::numeric, stone_per_sec = $7::numeric,
		    prestige_level = $8, tile_q = $9, tile_r = $10,
		    last_tick_at = $11, last_move_at = $12, updated_at = now()
		WHERE player_id = $1
	`, p.PlayerID,
		p.Balance.Gold.String(), p.Balance.Wood.String(), p.Balance.Stone.String(),
		p.Rates.Gold.String(), p.Rates.Wood.String(), p.Rates.Stone.String(),
		p.PrestigeLevel, p.Tile.Q, p.Tile.R, p.LastTickAt, nullTime(p.LastMoveAt))
	if err != nil {
		return err
	}
	p.Username = t.state.Username
	t.state = p
	return nil
}

func (t *playerTx) IncrementUpgrade(ctx context.Context, upgradeID string) (int, error) {
	var qty int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO game.player_upgrades (player_id, upgrade_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (player_id, upgrade_id)
		DO UPDATE SET quantity = game.player_upgrades.quantity + 1, purchased_at = now()
		RETURNING quantity
	`, t.state.PlayerID, upgradeID).Scan(&qty)
	return qty, err
}

func (t *playerTx) ClearUpgrades(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM game.player_upgrades WHERE player_id = $1`, t.state.PlayerID)
	return err
}

func scanPlayer(row pgx.Row) (game.PlayerState, error) {
	var (
		p                    game.PlayerState
		g, w, st, gr, wr, sr string
		lastMove             *time.Time
	)
	if err := row.Scan(&p.PlayerID, &p.Username, &g, &w, &st, &gr, &wr, &sr,
		&p.PrestigeLevel, &p.Tile.Q, &p.Tile.R, &p.LastTickAt, &lastMove); err != nil {
		return game.PlayerState{}, err
	}
	var err error
	if p.Balance, err = parseResources(g, w, st); err != nil {
		return game.PlayerState{}, err
	}
	if p.Rates, err = parseResources(gr, wr, sr); err != nil {
		return game.PlayerState{}, err
	}
	if lastMove != nil {
		p.LastMoveAt = *lastMove
	}
	return p, nil
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

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// lockTimeoutStatement rounds d up to whole milliseconds, since Postgres
// reads lock_timeout = 0 as no timeout at all.
func lockTimeoutStatement(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", int64(ms))
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// classify wraps lock, timeout and connectivity failures in
// game.ErrTransient. Domain errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return fmt.Errorf("%w: %s", game.ErrTransient, pgErr.Message)
		}
		if pgErr.Code[:2] == "08" {
			return fmt.Errorf("%w: %s", game.ErrTransient, pgErr.Message)
		}
		return err
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", game.ErrTransient, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", game.ErrTransient, err)
	}
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
