package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"hexidle/internal/economy"
	"hexidle/internal/game"
	"hexidle/internal/hexgrid"
)

func newPlayer(id, name string) game.NewPlayer {
	return game.NewPlayer{
		PlayerID: id,
		Username: name,
		State: game.PlayerState{
			Balance:    economy.NewResources(5, 0, 0),
			Rates:      game.DefaultStartRates,
			Tile:       hexgrid.StartCoord,
			LastTickAt: time.Unix(1_700_000_000, 0),
		},
	}
}

func TestCreatePlayerConflicts(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	if err := s.CreatePlayer(ctx, newPlayer("p1", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreatePlayer(ctx, newPlayer("p1", "other")); !errors.Is(err, game.ErrPlayerExists) {
		t.Fatalf("expected ErrPlayerExists, got %v", err)
	}
	if err := s.CreatePlayer(ctx, newPlayer("p2", "alice")); !errors.Is(err, game.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestWithPlayerRollsBackOnError(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	if err := s.CreatePlayer(ctx, newPlayer("p1", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}
	boom := errors.New("boom")
	err := s.WithPlayer(ctx, "p1", func(tx game.PlayerTx) error {
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
	p, owned, _ := s.Snapshot("p1")
	if !p.Balance.Equal(economy.NewResources(5, 0, 0)) {
		t.Fatalf("balance changed after rollback: %v", p.Balance)
	}
	if len(owned) != 0 {
		t.Fatalf("ownership changed after rollback: %v", owned)
	}
}

func TestWithPlayerUnknown(t *testing.T) {
	s := New(0)
	err := s.WithPlayer(context.Background(), "ghost", func(game.PlayerTx) error { return nil })
	if !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestWithPlayerLockTimeoutIsTransient(t *testing.T) {
	s := New(20 * time.Millisecond)
	ctx := context.Background()
	if err := s.CreatePlayer(ctx, newPlayer("p1", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithPlayer(ctx, "p1", func(game.PlayerTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	err := s.WithPlayer(ctx, "p1", func(game.PlayerTx) error { return nil })
	if game.KindOf(err) != game.KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder: %v", err)
	}
}

func TestSeedTilesOnlyOnce(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	seeded, err := s.SeedTiles(ctx, hexgrid.ReferenceLayout())
	if err != nil || !seeded {
		t.Fatalf("first seed: seeded=%v err=%v", seeded, err)
	}
	seeded, err = s.SeedTiles(ctx, []game.MapTile{{Coord: hexgrid.Coord{Q: 0, R: 0}, Type: "lake"}})
	if err != nil || seeded {
		t.Fatalf("second seed: seeded=%v err=%v", seeded, err)
	}
	tiles, _ := s.Tiles(ctx)
	if len(tiles) != 49 || tiles[0].Type != "forest" {
		t.Fatalf("unexpected tiles: %d first=%+v", len(tiles), tiles[0])
	}
}

func TestLeaderboardOrder(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	for _, p := range []struct {
		id, name string
		gold     float64
		level    int
	}{
		{"a", "alice", 500, 0},
		{"b", "bob", 10, 2},
		{"c", "carol", 900, 0},
		{"d", "dave", 20, 2},
	} {
		np := newPlayer(p.id, p.name)
		if err := s.CreatePlayer(ctx, np); err != nil {
			t.Fatalf("create: %v", err)
		}
		st := np.State
		st.PlayerID, st.Username = p.id, p.name
		st.Balance = economy.NewResources(p.gold, 0, 0)
		st.PrestigeLevel = p.level
		s.Put(st)
	}
	rows, err := s.Leaderboard(ctx, 3)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []string{"dave", "bob", "carol"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows", len(rows))
	}
	for i, name := range want {
		if rows[i].Username != name {
			t.Fatalf("rank %d got %s want %s", i+1, rows[i].Username, name)
		}
	}
}
