package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"hexidle/internal/app"
	"hexidle/internal/catalog"
	"hexidle/internal/config"
	"hexidle/internal/db"
	"hexidle/internal/game"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:          "hexidle-admin",
		Short:        "Operator tasks for the hexidle server",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newSeedMapCmd(),
		newCatalogCmd(),
		newSettleCmd(),
		newLeaderboardCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.GameConfig) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

// withService loads config, opens the store and builds the game service
// for one command.
func withService(cmd *cobra.Command, migrate bool, fn func(ctx context.Context, svc *game.Service, rt *app.Runtime) error) error {
	cfg, err := config.LoadGameFromEnv()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	rt, err := app.Open(cmd.Context(), cfg, logger, migrate, "hexidle-admin")
	if err != nil {
		return err
	}
	defer rt.Close()
	svc := game.NewService(rt.Store, rt.Catalog, rt.Rules, logger)
	return fn(cmd.Context(), svc, rt)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadGameFromEnv()
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				fmt.Printf("store %s creates its schema on open; nothing to migrate\n", cfg.Store)
				return nil
			}
			logger := newLogger(cfg)
			pool, err := db.Connect(cmd.Context(), cfg.DatabaseURL, db.PoolOptions{MaxConns: 2, MinConns: 1, ApplicationName: "hexidle-admin"})
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := db.Migrate(cmd.Context(), pool, logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("schema up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Println("applied", v)
			}
			return nil
		},
	}
}

func newSeedMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-map",
		Short: "Seed the reference map if no tiles exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, true, func(ctx context.Context, svc *game.Service, _ *app.Runtime) error {
				seeded, err := svc.SeedMap(ctx, nil)
				if err != nil {
					return err
				}
				if seeded {
					fmt.Println("map seeded")
				} else {
					fmt.Println("map already present; left unchanged")
				}
				return nil
			})
		},
	}
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog commands",
	}
	var file string
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate a catalog file and print its contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv("HEXIDLE_CATALOG_FILE")
			}
			cat, err := catalog.Load(file)
			if err != nil {
				return err
			}
			printCatalog(cat)
			fmt.Println("catalog OK")
			return nil
		},
	}
	check.Flags().StringVar(&file, "file", "", "YAML catalog file (built-in defaults when empty)")
	cmd.AddCommand(check)
	return cmd
}

func printCatalog(cat *catalog.Catalog) {
	tiles := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Tile", "Label", "Gold/s", "Wood/s", "Stone/s", "Passable"}),
	)
	for _, t := range cat.Tiles() {
		_ = tiles.Append([]string{
			t.Type,
			t.Label,
			t.Bonus.Gold.String(),
			t.Bonus.Wood.String(),
			t.Bonus.Stone.String(),
			strconv.FormatBool(!t.Impassable),
		})
	}
	_ = tiles.Render()

	ups := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Upgrade", "Category", "Cost", "Effect", "Requires", "Max"}),
	)
	for _, u := range cat.Upgrades() {
		maxQty := "-"
		if u.MaxQuantity > 0 {
			maxQty = strconv.Itoa(u.MaxQuantity)
		}
		_ = ups.Append([]string{u.ID, u.Category, u.Cost.String(), u.Effect.String(), u.Requires, maxQty})
	}
	_ = ups.Render()
}

func newSettleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <player-id>",
		Short: "Settle a player's pending accrual now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, false, func(ctx context.Context, svc *game.Service, _ *app.Runtime) error {
				p, err := svc.SettleTick(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s (%s) prestige %d at %s\n", p.Username, p.PlayerID, p.PrestigeLevel, p.Tile)
				fmt.Printf("balance %s\n", p.Balance.Truncated())
				fmt.Printf("settled at %s\n", p.LastTickAt.UTC().Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}
}

func newLeaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the leaderboard straight from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, false, func(ctx context.Context, svc *game.Service, _ *app.Runtime) error {
				rows, err := svc.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				table := tablewriter.NewTable(os.Stdout,
					tablewriter.WithHeader([]string{"Rank", "Player", "Prestige", "Gold", "Gold/s"}),
				)
				for _, r := range rows {
					_ = table.Append([]string{
						strconv.FormatInt(r.Rank, 10),
						r.Username,
						strconv.Itoa(r.PrestigeLevel),
						r.Gold.String(),
						r.GoldPerSec.StringFixed(2),
					})
				}
				return table.Render()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "rows to print (configured default when 0)")
	return cmd
}
