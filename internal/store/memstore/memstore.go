// Package memstore is an in-process game.Store. Each player is guarded by
// its own lock; a unit of work edits private copies that are published only
// when it succeeds.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hexidle/internal/game"
	"hexidle/internal/hexgrid"
	"hexidle/internal/keylock"
)

type account struct {
	playerID string
	hash     string
}

type Store struct {
	locks       *keylock.Locker
	lockTimeout time.Duration

	mu       sync.RWMutex
	players  map[string]game.PlayerState
	upgrades map[string]map[string]int
	accounts map[string]account
	tiles    map[hexgrid.Coord]game.MapTile
}

// New returns an empty store. lockTimeout bounds how long WithPlayer waits
// for a busy player; zero waits until ctx is done.
func New(lockTimeout time.Duration) *Store {
	return &Store{
		locks:       keylock.New(),
		lockTimeout: lockTimeout,
		players:     make(map[string]game.PlayerState),
		upgrades:    make(map[string]map[string]int),
		accounts:    make(map[string]account),
		tiles:       make(map[hexgrid.Coord]game.MapTile),
	}
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

	s.mu.RLock()
	p, ok := s.players[playerID]
	owned := copyOwned(s.upgrades[playerID])
	s.mu.RUnlock()
	if !ok {
		return game.ErrPlayerNotFound
	}

	tx := &playerTx{store: s, state: p, owned: owned}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.players[playerID] = tx.state
	if len(tx.owned) == 0 {
		delete(s.upgrades, playerID)
	} else {
		s.upgrades[playerID] = tx.owned
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) CreatePlayer(_ context.Context, np game.NewPlayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[np.PlayerID]; ok {
		return game.ErrPlayerExists
	}
	if _, ok := s.accounts[np.Username]; ok {
		return game.ErrUsernameTaken
	}
	st := np.State
	st.PlayerID = np.PlayerID
	st.Username = np.Username
	s.players[np.PlayerID] = st
	s.accounts[np.Username] = account{playerID: np.PlayerID, hash: np.PasswordHash}
	return nil
}

func (s *Store) Credentials(_ context.Context, username string) (game.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[username]
	if !ok {
		return game.Credentials{}, game.ErrPlayerNotFound
	}
	return game.Credentials{PlayerID: a.playerID, Username: username, PasswordHash: a.hash}, nil
}

func (s *Store) Tiles(context.Context) ([]game.MapTile, error) {
	s.mu.RLock()
	out := make([]game.MapTile, 0, len(s.tiles))
	for _, t := range s.tiles {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].R != out[j].R {
			return out[i].R < out[j].R
		}
		return out[i].Q < out[j].Q
	})
	return out, nil
}

func (s *Store) SeedTiles(_ context.Context, tiles []game.MapTile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tiles) > 0 {
		return false, nil
	}
	for _, t := range tiles {
		s.tiles[t.Coord] = t
	}
	return true, nil
}

func (s *Store) Occupants(context.Context) ([]game.Occupant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]game.Occupant, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, game.Occupant{Username: p.Username, Tile: p.Tile})
	}
	return out, nil
}

func (s *Store) Leaderboard(_ context.Context, limit int) ([]game.RankedPlayer, error) {
	s.mu.RLock()
	out := make([]game.RankedPlayer, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, game.RankedPlayer{
			Username:      p.Username,
			Gold:          p.Balance.Gold,
			GoldPerSec:    p.Rates.Gold,
			PrestigeLevel: p.PrestigeLevel,
			Tile:          p.Tile,
		})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].PrestigeLevel != out[j].PrestigeLevel {
			return out[i].PrestigeLevel > out[j].PrestigeLevel
		}
		if c := out[i].Gold.Cmp(out[j].Gold); c != 0 {
			return c > 0
		}
		return out[i].Username < out[j].Username
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Put overwrites a player's state. Used to stage fixtures.
func (s *Store) Put(p game.PlayerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.PlayerID] = p
}

// Snapshot returns the committed state and ownership of a player.
func (s *Store) Snapshot(playerID string) (game.PlayerState, map[string]int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	return p, copyOwned(s.upgrades[playerID]), ok
}

type playerTx struct {
	store *Store
	state game.PlayerState
	owned map[string]int
}

func (tx *playerTx) Player() game.PlayerState { return tx.state }

func (tx *playerTx) TileAt(_ context.Context, c hexgrid.Coord) (game.MapTile, bool, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	t, ok := tx.store.tiles[c]
	return t, ok, nil
}

func (tx *playerTx) Upgrades(context.Context) (map[string]int, error) {
	return copyOwned(tx.owned), nil
}

func (tx *playerTx) SavePlayer(_ context.Context, p game.PlayerState) error {
	if p.PlayerID != tx.state.PlayerID {
		return errors.New("memstore: cannot save a different player inside this unit of work")
	}
	p.Username = tx.state.Username
	tx.state = p
	return nil
}

func (tx *playerTx) IncrementUpgrade(_ context.Context, upgradeID string) (int, error) {
	tx.owned[upgradeID]++
	return tx.owned[upgradeID], nil
}

func (tx *playerTx) ClearUpgrades(context.Context) error {
	tx.owned = map[string]int{}
	return nil
}

func copyOwned(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
