package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"hexidle/internal/catalog"
	"hexidle/internal/economy"
	"hexidle/internal/hexgrid"

	"github.com/shopspring/decimal"
)

// MaxLeaderboardLimit caps caller-supplied leaderboard sizes.
const MaxLeaderboardLimit = 100

// Rules are the tunable constants of a deployment. Zero fields fall back to
// the reference values; a negative OfflineCap or MoveCooldown disables it.
type Rules struct {
	Grid              hexgrid.Grid
	StartTile         hexgrid.Coord
	StartRates        economy.Resources
	OfflineCap        time.Duration
	MoveCooldown      time.Duration
	PrestigeThreshold decimal.Decimal
	LeaderboardLimit  int
}

func DefaultRules() Rules {
	return Rules{
		Grid:              hexgrid.New(hexgrid.DefaultSize),
		StartTile:         hexgrid.StartCoord,
		StartRates:        DefaultStartRates,
		OfflineCap:        economy.DefaultOfflineCap,
		MoveCooldown:      DefaultMoveCooldown,
		PrestigeThreshold: DefaultPrestigeThreshold,
		LeaderboardLimit:  DefaultLeaderboardLimit,
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.Grid.Size <= 0 {
		r.Grid = d.Grid
		r.StartTile = d.StartTile
	}
	if !r.Grid.InBounds(r.StartTile) {
		r.StartTile = hexgrid.Coord{Q: r.Grid.Size / 2, R: r.Grid.Size / 2}
	}
	if r.StartRates.IsZero() {
		r.StartRates = d.StartRates
	}
	if r.OfflineCap == 0 {
		r.OfflineCap = d.OfflineCap
	}
	if r.MoveCooldown == 0 {
		r.MoveCooldown = d.MoveCooldown
	}
	if r.PrestigeThreshold.IsZero() {
		r.PrestigeThreshold = d.PrestigeThreshold
	}
	if r.LeaderboardLimit <= 0 {
		r.LeaderboardLimit = d.LeaderboardLimit
	}
	return r
}

type Option func(*Service)

// WithClock replaces time.Now. Tests use it to simulate elapsed time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

type Service struct {
	store    Store
	catalog  *catalog.Catalog
	rules    Rules
	log      *slog.Logger
	now      func() time.Time
	events   EventSink
	observer Observer
}

func NewService(store Store, cat *catalog.Catalog, rules Rules, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	s := &Service{
		store:   store,
		catalog: cat,
		rules:   rules.withDefaults(),
		log:     logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Rules() Rules {
	return s.rules
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// NewPlayerState returns the state a freshly registered player starts with.
func (s *Service) NewPlayerState(playerID, username string) PlayerState {
	now := s.now()
	return PlayerState{
		PlayerID:   playerID,
		Username:   username,
		Balance:    economy.Zero,
		Rates:      s.rules.StartRates,
		Tile:       s.rules.StartTile,
		LastTickAt: now,
		// Zero so a new player may move immediately.
		LastMoveAt: time.Time{},
	}
}

type settled struct {
	state   PlayerState
	tile    MapTile
	tileOK  bool
	elapsed decimal.Decimal
}

// settle pays out accrual owed since LastTickAt and advances it to now.
// Must run inside WithPlayer.
func (s *Service) settle(ctx context.Context, tx PlayerTx, now time.Time) (settled, error) {
	p := tx.Player()
	tile, ok, err := tx.TileAt(ctx, p.Tile)
	if err != nil {
		return settled{}, err
	}
	bonus := economy.Zero
	if ok {
		bonus = s.catalog.Bonus(tile.Type)
	}

	elapsed := economy.ClampElapsed(p.LastTickAt, now, s.rules.OfflineCap)
	delta := economy.Accrue(elapsed, p.Rates, bonus, p.Multiplier())
	p.Balance = p.Balance.Add(delta)
	if now.After(p.LastTickAt) {
		p.LastTickAt = now
	}
	if err := tx.SavePlayer(ctx, p); err != nil {
		return settled{}, err
	}
	return settled{state: p, tile: tile, tileOK: ok, elapsed: elapsed}, nil
}

// SettleTick applies owed accrual and returns the updated state.
func (s *Service) SettleTick(ctx context.Context, playerID string) (out PlayerState, err error) {
	defer s.track("settle", playerID, time.Now(), &err)

	var elapsed decimal.Decimal
	err = s.store.WithPlayer(ctx, playerID, func(tx PlayerTx) error {
		st, err := s.settle(ctx, tx, s.now())
		if err != nil {
			return err
		}
		out, elapsed = st.state, st.elapsed
		return nil
	})
	if err != nil {
		return PlayerState{}, err
	}
	s.observeSettle(elapsed)
	return out, nil
}

// PlayerView settles the player and returns the read model.
func (s *Service) PlayerView(ctx context.Context, playerID string) (view PlayerView, err error) {
	defer s.track("view", playerID, time.Now(), &err)

	var elapsed decimal.Decimal
	err = s.store.WithPlayer(ctx, playerID, func(tx PlayerTx) error {
		now := s.now()
		st, err := s.settle(ctx, tx, now)
		if err != nil {
			return err
		}
		owned, err := tx.Upgrades(ctx)
		if err != nil {
			return err
		}
		elapsed = st.elapsed
		view = s.buildView(st.state, st.tile, st.tileOK, owned, now)
		return nil
	})
	if err != nil {
		return PlayerView{}, err
	}
	s.observeSettle(elapsed)
	return view, nil
}

// BuyUpgrade settles, checks limits, prerequisite and cost, then applies the
// purchase. All of it happens under one lock; a rejection leaves nothing
// behind, including the settlement.
func (s *Service) BuyUpgrade(ctx context.Context, playerID, upgradeID string) (view PlayerView, err error) {
	defer s.track("buy_upgrade", playerID, time.Now(), &err)

	def, ok := s.catalog.Upgrade(strings.TrimSpace(upgradeID))
	if !ok {
		return PlayerView{}, ErrInvalidUpgrade
	}

	var elapsed decimal.Decimal
	err = s.store.WithPlayer(ctx, playerID, func(tx PlayerTx) error {
		now := s.now()
		st, err := s.settle(ctx, tx, now)
		if err != nil {
			return err
		}
		owned, err := tx.Upgrades(ctx)
		if err != nil {
			return err
		}

		p := st.state
		qty := owned[def.ID]
		if def.MaxQuantity > 0 && qty >= def.MaxQuantity {
			return ErrMaxQuantity
		}
		if def.Requires != "" && owned[def.Requires] < 1 {
			return ErrPrerequisite
		}
		if res, short := def.Cost.Shortfall(p.Balance); short {
			return notEnough(res)
		}

		p.Balance = p.Balance.Sub(def.Cost)
		p.Rates = p.Rates.Add(def.Effect)
		if err := tx.SavePlayer(ctx, p); err != nil {
			return err
		}
		n, err := tx.IncrementUpgrade(ctx, def.ID)
		if err != nil {
			return err
		}
		owned[def.ID] = n

		elapsed = st.elapsed
		view = s.buildView(p, st.tile, st.tileOK, owned, now)
		return nil
	})
	if err != nil {
		return PlayerView{}, err
	}
	s.observeSettle(elapsed)
	return view, nil
}

// Prestige resets the player in exchange for a permanent multiplier. The
// threshold is checked against the persisted balance, without settling.
func (s *Service) Prestige(ctx context.Context, playerID string) (view PlayerView, err error) {
	defer s.track("prestige", playerID, time.Now(), &err)

	var ev Event
	err = s.store.WithPlayer(ctx, playerID, func(tx PlayerTx) error {
		p := tx.Player()
		if p.Balance.Gold.LessThan(s.rules.PrestigeThreshold) {
			return ErrPrestigeLocked
		}

		now := s.now()
		from := p.Tile
		p.PrestigeLevel++
		p.Balance = economy.Zero
		p.Rates = s.rules.StartRates
		p.Tile = s.rules.StartTile
		p.LastTickAt = now
		p.LastMoveAt = now
		if err := tx.SavePlayer(ctx, p); err != nil {
			return err
		}
		if err := tx.ClearUpgrades(ctx); err != nil {
			return err
		}

		tile, ok, err := tx.TileAt(ctx, p.Tile)
		if err != nil {
			return err
		}
		view = s.buildView(p, tile, ok, map[string]int{}, now)
		ev = Event{Type: EventPrestiged, Username: p.Username, From: from, To: p.Tile, PrestigeLevel: p.PrestigeLevel, At: now}
		return nil
	})
	if err != nil {
		return PlayerView{}, err
	}
	s.log.Info("player prestiged", "player_id", playerID, "level", view.PrestigeLevel)
	s.publish(ev)
	return view, nil
}

func (s *Service) buildView(p PlayerState, tile MapTile, tileOK bool, owned map[string]int, now time.Time) PlayerView {
	bonus := economy.Zero
	var tileType, label string
	if tileOK {
		tileType = tile.Type
		label = tile.Type
		if tt, ok := s.catalog.Tile(tile.Type); ok {
			label = tt.Label
			bonus = tt.Bonus
		}
	}
	mult := p.Multiplier()
	if owned == nil {
		owned = map[string]int{}
	}
	var ready int64
	if rem := s.cooldownRemaining(p.LastMoveAt, now); rem > 0 {
		ready = (&CooldownError{Remaining: rem}).Seconds()
	}
	return PlayerView{
		PlayerID:           p.PlayerID,
		Username:           p.Username,
		Resources:          p.Balance.Truncated(),
		Rates:              economy.EffectiveRates(p.Rates, bonus, mult),
		BaseRates:          p.Rates,
		PrestigeLevel:      p.PrestigeLevel,
		PrestigeMultiplier: mult,
		TileQ:              p.Tile.Q,
		TileR:              p.Tile.R,
		TileType:           tileType,
		TileLabel:          label,
		TileBonus:          bonus,
		Upgrades:           owned,
		Neighbors:          s.rules.Grid.Neighbors(p.Tile),
		LastTickAt:         p.LastTickAt,
		LastMoveAt:         p.LastMoveAt,
		MoveReadyInSeconds: ready,
		CanPrestige:        !p.Balance.Gold.LessThan(s.rules.PrestigeThreshold),
	}
}

// Upgrades lists the catalog annotated with the player's ownership.
func (s *Service) Upgrades(ctx context.Context, playerID string) ([]UpgradeView, error) {
	view, err := s.PlayerView(ctx, playerID)
	if err != nil {
		return nil, err
	}
	defs := s.catalog.Upgrades()
	out := make([]UpgradeView, 0, len(defs))
	for _, u := range defs {
		owned := view.Upgrades[u.ID]
		out = append(out, UpgradeView{
			ID:          u.ID,
			Name:        u.Name,
			Description: u.Description,
			Category:    u.Category,
			Cost:        u.Cost,
			Effect:      u.Effect,
			Requires:    u.Requires,
			MaxQuantity: u.MaxQuantity,
			Owned:       owned,
			Unlocked:    u.Requires == "" || view.Upgrades[u.Requires] > 0,
			Affordable:  !hasShortfall(u.Cost, view.Resources),
		})
	}
	return out, nil
}

func hasShortfall(cost, have economy.Resources) bool {
	_, short := cost.Shortfall(have)
	return short
}

// SeedMap stores layout if the map is empty. A nil layout seeds the
// reference map.
func (s *Service) SeedMap(ctx context.Context, layout []MapTile) (bool, error) {
	if layout == nil {
		layout = hexgrid.ReferenceLayout()
	}
	if err := s.rules.Grid.ValidateLayout(layout); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	startOK := false
	for _, t := range layout {
		if _, ok := s.catalog.Tile(t.Type); !ok {
			return false, fmt.Errorf("%w: tile %s has unknown type %q", ErrInvalidInput, t.Coord, t.Type)
		}
		if t.Coord == s.rules.StartTile {
			startOK = s.catalog.Passable(t.Type)
		}
	}
	if !startOK {
		return false, fmt.Errorf("%w: start tile %s is not passable", ErrInvalidInput, s.rules.StartTile)
	}
	seeded, err := s.store.SeedTiles(ctx, layout)
	if err != nil {
		return false, err
	}
	if seeded {
		s.log.Info("map seeded", "tiles", len(layout))
	}
	return seeded, nil
}

// Map returns every tile with its occupants, ordered by row then column.
func (s *Service) Map(ctx context.Context) (MapView, error) {
	tiles, err := s.store.Tiles(ctx)
	if err != nil {
		return MapView{}, err
	}
	occupants, err := s.store.Occupants(ctx)
	if err != nil {
		return MapView{}, err
	}
	byCoord := make(map[hexgrid.Coord][]string, len(occupants))
	for _, o := range occupants {
		byCoord[o.Tile] = append(byCoord[o.Tile], o.Username)
	}

	out := MapView{Size: s.rules.Grid.Size, Tiles: make([]MapTileView, 0, len(tiles))}
	for _, t := range tiles {
		players := byCoord[t.Coord]
		if players == nil {
			players = []string{}
		}
		sort.Strings(players)
		v := MapTileView{Q: t.Q, R: t.R, Type: t.Type, Label: t.Type, Bonus: economy.Zero, Players: players}
		if tt, ok := s.catalog.Tile(t.Type); ok {
			v.Label = tt.Label
			v.Bonus = tt.Bonus
		}
		v.Impassable = !s.catalog.Passable(t.Type)
		out.Tiles = append(out.Tiles, v)
	}
	sort.Slice(out.Tiles, func(i, j int) bool {
		if out.Tiles[i].R != out.Tiles[j].R {
			return out.Tiles[i].R < out.Tiles[j].R
		}
		return out.Tiles[i].Q < out.Tiles[j].Q
	})
	return out, nil
}

// Leaderboard ranks by prestige level, then gold. Gold is the persisted
// balance and may trail the owner's unsettled accrual.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = s.rules.LeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	ranked, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	tiles, err := s.store.Tiles(ctx)
	if err != nil {
		return nil, err
	}
	tileTypes := make(map[hexgrid.Coord]string, len(tiles))
	for _, t := range tiles {
		tileTypes[t.Coord] = t.Type
	}

	out := make([]LeaderboardRow, 0, len(ranked))
	for i, r := range ranked {
		bonus := s.catalog.Bonus(tileTypes[r.Tile])
		out = append(out, LeaderboardRow{
			Rank:          int64(i + 1),
			Username:      r.Username,
			Gold:          r.Gold.Truncate(0),
			PrestigeLevel: r.PrestigeLevel,
			GoldPerSec:    r.GoldPerSec.Add(bonus.Gold).Mul(economy.PrestigeMultiplier(r.PrestigeLevel)),
		})
	}
	return out, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) cooldownRemaining(lastMove, now time.Time) time.Duration {
	if s.rules.MoveCooldown <= 0 || lastMove.IsZero() {
		return 0
	}
	since := now.Sub(lastMove)
	if since < 0 {
		since = 0
	}
	return s.rules.MoveCooldown - since
}

func (s *Service) publish(ev Event) {
	if s.events == nil || ev.Type == "" {
		return
	}
	s.events.Publish(ev)
}

func (s *Service) observeSettle(elapsed decimal.Decimal) {
	if s.observer != nil {
		s.observer.ObserveSettle(elapsed.InexactFloat64())
	}
}

func (s *Service) track(op, playerID string, start time.Time, errp *error) {
	err := *errp
	outcome := "ok"
	if err != nil {
		kind := KindOf(err)
		outcome = kind.String()
		switch kind {
		case KindTransient:
			s.log.Warn("operation failed", "op", op, "player_id", playerID, "err", err)
		case KindInternal:
			if !errors.Is(err, context.Canceled) {
				s.log.Error("operation failed", "op", op, "player_id", playerID, "err", err)
			}
		default:
			s.log.Debug("operation rejected", "op", op, "player_id", playerID, "err", err)
		}
	}
	if s.observer != nil {
		s.observer.ObserveOperation(op, outcome, time.Since(start).Seconds())
	}
}
