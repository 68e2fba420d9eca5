// Package main provides boxctl, the operator CLI for the crate ledger.
//
// boxctl works directly on the SQLite file the server uses. Every write goes
// through the same ledgers (and the same write-serialized transactions) as
// the HTTP API, so it is safe to run against a live database.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/crate-ledger/api"
	"github.com/warp/crate-ledger/circulation"
	"github.com/warp/crate-ledger/config"
	"github.com/warp/crate-ledger/store/sqlite"
)

const appName = "boxctl"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	envFile    string
	dbPath     string
	logLevel   string
	asJSON     bool
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Operator tooling for the crate circulation ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.envFile, "env", ".env", "dotenv file")
	cmd.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&g.asJSON, "json", false, "Print results as JSON")

	cmd.AddCommand(
		migrateCmd(g),
		totalsCmd(g),
		dispatchCmd(g),
		scenarioCmd(g),
	)
	return cmd
}

// open loads configuration and returns a handler over the configured
// database. Opening the store applies the schema.
func (g *globals) open(errOut io.Writer) (*api.Handler, func(), error) {
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return nil, nil, err
	}
	if g.dbPath != "" {
		cfg.Database.Path = g.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: parseLevel(g.logLevel)}))
	h := api.NewHandler(store, circulation.Options{Logger: logger})
	return h, func() { store.Close() }, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func (g *globals) print(w io.Writer, v any, table func(*tabwriter.Writer)) error {
	if g.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// =============================================================================
// COMMANDS
// =============================================================================

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()
			if err := h.Store.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func totalsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Print the reconciled distribution center balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := h.Depot.ComputeTotals(cmd.Context())
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), t, func(tw *tabwriter.Writer) {
				center := t.Center
				if center == "" {
					center = "(not configured)"
				}
				fmt.Fprintf(tw, "center\t%s\n", center)
				fmt.Fprintf(tw, "received from trips\t%d\n", t.ReceivedFromTrips)
				fmt.Fprintf(tw, "dispatch returns\t%d\n", t.DispatchReturns)
				fmt.Fprintf(tw, "dispatched\t%d\n", t.Dispatched)
				fmt.Fprintf(tw, "forwarded to origin\t%d\n", t.ForwardedToOrigin)
				fmt.Fprintf(tw, "stock\t%d\n", t.Stock)
			})
		},
	}
}

func dispatchCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Operator overrides on CD dispatches",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "force-delete <id>",
		Short: "Delete a dispatch even if it has returns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDispatchID(args[0])
			if err != nil {
				return err
			}
			h, closeFn, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := h.Depot.ForceDeleteDispatch(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dispatch %d deleted\n", id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revert <id>",
		Short: "Set a dispatch's returned count back to zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDispatchID(args[0])
			if err != nil {
				return err
			}
			h, closeFn, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := h.Depot.RevertDispatchToPending(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dispatch %d reverted, %d boxes pending again\n", id, n)
			return nil
		},
	})

	return cmd
}

func parseDispatchID(s string) (circulation.DispatchID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid dispatch id %q", s)
	}
	return circulation.DispatchID(id), nil
}

func scenarioCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Demo data sets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := api.Scenarios()
			return g.print(cmd.OutOrStdout(), list, func(tw *tabwriter.Writer) {
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Description)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "load <id>",
		Short: "Reset the database and load a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := h.ApplyScenario(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scenario %s loaded\n", args[0])
			return nil
		},
	})

	return cmd
}
