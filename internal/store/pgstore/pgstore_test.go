package pgstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"hexidle/internal/db"
	"hexidle/internal/economy"
	"hexidle/internal/game"
	"hexidle/internal/hexgrid"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := db.Migrate(ctx, pool, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(pool, 2*time.Second, nil)
}

func createPlayer(t *testing.T, s *Store) game.NewPlayer {
	t.Helper()
	id := uuid.NewString()
	np := game.NewPlayer{
		PlayerID:     id,
		Username:     "t_" + id[:8],
		PasswordHash: "hash",
		State: game.PlayerState{
			Balance:    economy.NewResources(12.3456789, 0, 0),
			Rates:      game.DefaultStartRates,
			Tile:       hexgrid.StartCoord,
			LastTickAt: time.Now().UTC().Truncate(time.Microsecond),
		},
	}
	if err := s.CreatePlayer(context.Background(), np); err != nil {
		t.Fatalf("create player: %v", err)
	}
	return np
}

func TestLockTimeoutStatement(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, ""},
		{-time.Second, ""},
		{time.Microsecond, "SET LOCAL lock_timeout = '1ms'"},
		{999 * time.Microsecond, "SET LOCAL lock_timeout = '1ms'"},
		{1500 * time.Microsecond, "SET LOCAL lock_timeout = '2ms'"},
		{3 * time.Second, "SET LOCAL lock_timeout = '3000ms'"},
	}
	for _, tc := range tests {
		if got := lockTimeoutStatement(tc.in); got != tc.want {
			t.Fatalf("lockTimeoutStatement(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreatePlayerAndConflicts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	np := createPlayer(t, s)

	if err := s.CreatePlayer(ctx, np); !errors.Is(err, game.ErrPlayerExists) {
		t.Fatalf("expected ErrPlayerExists, got %v", err)
	}
	other := np
	other.PlayerID = uuid.NewString()
	if err := s.CreatePlayer(ctx, other); !errors.Is(err, game.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	creds, err := s.Credentials(ctx, np.Username)
	if err != nil || creds.PlayerID != np.PlayerID || creds.PasswordHash != "hash" {
		t.Fatalf("credentials %+v %v", creds, err)
	}
}

func TestWithPlayerRoundTripsDecimals(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	np := createPlayer(t, s)

	err := s.WithPlayer(ctx, np.PlayerID, func(tx game.PlayerTx) error {
		p := tx.Player()
		if !p.Balance.Equal(np.State.Balance) {
			t.Errorf("balance %v want %v", p.Balance, np.State.Balance)
		}
		if !p.LastMoveAt.IsZero() {
			t.Errorf("last move should be unset, got %v", p.LastMoveAt)
		}
		p.Balance = p.Balance.Add(economy.NewResources(0.0000001, 1, 2))
		p.LastMoveAt = p.LastTickAt
		return tx.SavePlayer(ctx, p)
	})
	if err != nil {
		t.Fatalf("with player: %v", err)
	}
	err = s.WithPlayer(ctx, np.PlayerID, func(tx game.PlayerTx) error {
		want := np.State.Balance.Add(economy.NewResources(0.0000001, 1, 2))
		if got := tx.Player().Balance; !got.Equal(want) {
			t.Errorf("balance %v want %v", got, want)
		}
		if tx.Player().LastMoveAt.IsZero() {
			t.Errorf("last move not persisted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with player: %v", err)
	}
}

func TestWithPlayerRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	np := createPlayer(t, s)
	boom := errors.New("boom")

	err := s.WithPlayer(ctx, np.PlayerID, func(tx game.PlayerTx) error {
		p := tx.Player()
		p.Balance = economy.Zero
		if err := tx.SavePlayer(ctx, p); err != nil {
			return err
		}
		if _, err := tx.IncrementUpgrade(ctx, "wooden_pickaxe"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	err = s.WithPlayer(ctx, np.PlayerID, func(tx game.PlayerTx) error {
		owned, err := tx.Upgrades(ctx)
		if err != nil {
			return err
		}
		if len(owned) != 0 || !tx.Player().Balance.Equal(np.State.Balance) {
			t.Errorf("rollback leaked: %v %v", owned, tx.Player().Balance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with player: %v", err)
	}
}

func TestWithPlayerSerializesIncrements(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	np := createPlayer(t, s)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithPlayer(ctx, np.PlayerID, func(tx game.PlayerTx) error {
				p := tx.Player()
				p.Balance.Gold = p.Balance.Gold.Add(economy.NewResources(1, 0, 0).Gold)
				if err := tx.SavePlayer(ctx, p); err != nil {
					return err
				}
				_, err := tx.IncrementUpgrade(ctx, "gold_mine")
				return err
			})
			if err != nil {
				t.Errorf("with player: %v", err)
			}
		}()
	}
	wg.Wait()

	err := s.WithPlayer(ctx, np.PlayerID, func(tx game.PlayerTx) error {
		owned, err := tx.Upgrades(ctx)
		if err != nil {
			return err
		}
		if owned["gold_mine"] != n {
			t.Errorf("quantity %d want %d", owned["gold_mine"], n)
		}
		want := np.State.Balance.Gold.Add(economy.NewResources(n, 0, 0).Gold)
		if !tx.Player().Balance.Gold.Equal(want) {
			t.Errorf("gold %s want %s", tx.Player().Balance.Gold, want)
		}
		return tx.ClearUpgrades(ctx)
	})
	if err != nil {
		t.Fatalf("with player: %v", err)
	}
}

func TestWithPlayerUnknown(t *testing.T) {
	s := openStore(t)
	err := s.WithPlayer(context.Background(), uuid.NewString(), func(game.PlayerTx) error { return nil })
	if !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestSeedTilesIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if _, err := s.SeedTiles(ctx, hexgrid.ReferenceLayout()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	seeded, err := s.SeedTiles(ctx, hexgrid.ReferenceLayout())
	if err != nil || seeded {
		t.Fatalf("second seed: seeded=%v err=%v", seeded, err)
	}
	tiles, err := s.Tiles(ctx)
	if err != nil || len(tiles) != 49 {
		t.Fatalf("tiles=%d err=%v", len(tiles), err)
	}
}
