package game

import (
	"context"
	"time"

	"hexidle/internal/hexgrid"
)

// MoveTo moves the player one tile. Checks run in order: cooldown,
// adjacency, tile existence, passability. The move itself does not settle
// accrual; the returned view does, so time since the last settlement is
// paid at the destination's bonus.
func (s *Service) MoveTo(ctx context.Context, playerID string, target hexgrid.Coord) (view PlayerView, err error) {
	defer s.track("move", playerID, time.Now(), &err)

	var ev Event
	err = s.store.WithPlayer(ctx, playerID, func(tx PlayerTx) error {
		p := tx.Player()
		now := s.now()
		if rem := s.cooldownRemaining(p.LastMoveAt, now); rem > 0 {
			return &CooldownError{Remaining: rem}
		}
		if !s.rules.Grid.Adjacent(p.Tile, target) {
			return ErrNotAdjacent
		}
		tile, ok, err := tx.TileAt(ctx, target)
		if err != nil {
			return err
		}
		if !ok {
			return tileNotFound(target)
		}
		if !s.catalog.Passable(tile.Type) {
			return ErrImpassable
		}

		ev = Event{Type: EventMoved, Username: p.Username, From: p.Tile, To: target, PrestigeLevel: p.PrestigeLevel, At: now}
		p.Tile = target
		p.LastMoveAt = now
		return tx.SavePlayer(ctx, p)
	})
	if err != nil {
		return PlayerView{}, err
	}
	s.publish(ev)
	return s.PlayerView(ctx, playerID)
}
