package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "hexidle/internal/cli"
	"hexidle/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "hex",
		Short:        "Hex idle game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newRegisterCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newStateCmd(&apiBase),
		newUpgradesCmd(&apiBase),
		newBuyCmd(&apiBase),
		newPrestigeCmd(&apiBase),
		newMapCmd(&apiBase),
		newMoveCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newWatchCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func newRegisterCmd(apiBase *string) *cobra.Command {
	var withEmail bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)

			var (
				sess cl.Session
				err  error
			)
			if withEmail {
				email, perr := promptRequired("Email")
				if perr != nil {
					return perr
				}
				password, perr := promptPassword("Password")
				if perr != nil {
					return perr
				}
				username, perr := promptOptional("Username (optional)")
				if perr != nil {
					return perr
				}
				sess, err = client.Signup(ctx, email, password, username)
			} else {
				username, perr := promptRequired("Username")
				if perr != nil {
					return perr
				}
				password, perr := promptPassword("Password")
				if perr != nil {
					return perr
				}
				sess, err = client.Register(ctx, username, password)
			}
			if err != nil {
				return err
			}
			if strings.TrimSpace(sess.AccessToken) == "" {
				printWarn("Account created. Verify your email, then run `hex login --email`.")
				return nil
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Welcome to the valley. Session saved.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&withEmail, "email", false, "register with email (Supabase servers)")
	return cmd
}

func newLoginCmd(apiBase *string) *cobra.Command {
	var withEmail bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			label := "Username"
			if withEmail {
				label = "Email"
			}
			who, err := promptRequired(label)
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)

			var sess cl.Session
			if withEmail {
				sess, err = client.LoginEmail(ctx, who, password)
			} else {
				sess, err = client.Login(ctx, who, password)
			}
			if err != nil {
				return err
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&withEmail, "email", false, "log in with email (Supabase servers)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show resources, rates and position",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).State(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderState(view)
			return nil
		},
	}
}

func newUpgradesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrades",
		Short: "List upgrades and what you own",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ups, err := newClient(apiBase).Upgrades(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderUpgrades(ups)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <upgrade-id>",
		Short: "Buy an upgrade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			id := strings.ToLower(strings.TrimSpace(args[0]))
			view, err := newClient(apiBase).Buy(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought %s (owned: %d).", id, view.Upgrades[id]))
			renderState(view)
			return nil
		},
	}
}

func newPrestigeCmd(apiBase *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "prestige",
		Short: "Reset resources and upgrades for a permanent multiplier",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			if !yes {
				answer, err := promptChoice("Prestige resets all resources and upgrades. Continue?", []string{"yes", "no"}, "no")
				if err != nil {
					return err
				}
				if answer != "yes" {
					printInfo("Prestige cancelled.")
					return nil
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).Prestige(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Prestige level %d reached. Multiplier x%s.", view.PrestigeLevel, view.PrestigeMultiplier.StringFixed(1)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newMapCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "map",
		Short: "Show the world map",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			m, err := client.Map(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			view, err := client.State(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			fmt.Println(renderMap(m, view))
			return nil
		},
	}
}

func newMoveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "move <q> <r>",
		Short: "Travel to an adjacent tile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("q must be a whole number")
			}
			r, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("r must be a whole number")
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).Move(ctx, sess.AccessToken, q, r)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Arrived at (%d,%d): %s.", view.TileQ, view.TileR, view.TileLabel))
			renderState(view)
			return nil
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Top players by prestige and gold",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			renderLeaderboard(rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "rows to show (server default when 0)")
	return cmd
}
