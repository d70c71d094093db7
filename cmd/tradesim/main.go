package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/internal/report"
	"github.com/yourorg/tradesim/internal/server"
	"github.com/yourorg/tradesim/internal/store"
	"github.com/yourorg/tradesim/pkg/types"
)

const defaultConfigContent = `api:
  base_url: "http://localhost:8000"
  timeout: 0s

scheduler:
  debounce: 1s
  min_indicator: 600ms

server:
  host: "127.0.0.1"
  port: 3000

log:
  level: "info"
  format: "text"

metrics:
  enabled: true

tracing:
  enabled: false
  exporter: "stdout"
  service_name: "tradesim"
  sample_ratio: 1

ledger:
  capacity: 30
  kafka:
    brokers: []
    topic: "tradesim.geo-actions"

output:
  dir: "./output"
  formats:
    - markdown
    - yaml
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &appOptions{}

	root := &cobra.Command{
		Use:           "tradesim",
		Short:         "Trade and geopolitics simulator client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newSimulateCmd(opts))
	root.AddCommand(newRunsCmd(opts))
	root.AddCommand(newFactorsCmd(opts))
	root.AddCommand(newGeoCmd(opts))
	root.AddCommand(newLedgerCmd(opts))
	root.AddCommand(newCatalogCmd(opts))
	root.AddCommand(newCountriesCmd(opts))
	root.AddCommand(newCommoditiesCmd(opts))
	root.AddCommand(newRoutesCmd(opts))
	root.AddCommand(newResetCmd(opts))

	return root
}

// withApp wires the client for one command and tears it down afterwards.
func withApp(cmd *cobra.Command, opts *appOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, *opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// userError replaces gateway errors with their user-facing text.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(gateway.Message(err))
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.tradesim directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".tradesim")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "tradesim.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "set api.base_url in", cfgFile, "to point at the simulation service")
			return nil
		},
	}
}

func newServeCmd(opts *appOptions) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{Use: "serve", Short: "Start the local dashboard", RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			var gauge server.ClientGauge
			var metricsHandler http.Handler
			if a.metrics != nil {
				gauge = a.metrics
				metricsHandler = a.metrics.Handler()
			}
			hub := server.NewHub(a.log, gauge)
			go hub.Run(ctx)

			srv, err := server.New(a.cfg, server.Deps{
				Session: a.session,
				Catalog: a.api,
				Routes:  a.routes,
				Factors: a.factors,
				Drafts:  a.drafts,
				Ledger:  a.ledger,
				Hub:     hub,
				Metrics: metricsHandler,
				Logger:  a.log,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			a.warm(ctx)

			addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
			httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				a.log.Info("dashboard listening", "addr", "http://"+addr, "api", a.cfg.API.BaseURL)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.log.Info("shutting down dashboard")
			return httpSrv.Shutdown(shutdownCtx)
		})
	}}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3000, "server port")
	return cmd
}

func newSimulateCmd(opts *appOptions) *cobra.Command {
	var (
		mode       string
		alt        string
		outDir     string
		last       bool
		rounds     int
		discount   float64
		shock      float64
		aggression float64
	)
	cmd := &cobra.Command{
		Use:   "simulate [origin] [destination]",
		Short: "Run a simulation for one corridor",
		Args: func(cmd *cobra.Command, args []string) error {
			if last {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if last {
					snap, err := a.session.LastSnapshot()
					if err != nil {
						return err
					}
					if snap == nil {
						return errors.New("no simulation has completed yet")
					}
					fmt.Fprintf(out, "last run %s (informational, not a fresh result)\n", snap.CompletedAt.Local().Format(time.RFC1123))
					printAlternatives(out, &snap.Response, snap.Active)
					if outDir != "" {
						r, err := report.FromSnapshot(snap)
						if err != nil {
							return err
						}
						return writeReport(cmd, a, r, outDir)
					}
					return nil
				}

				a.warm(ctx)
				if err := a.session.SelectCorridor(args[0], args[1]); err != nil {
					return userError(err)
				}
				if mode != "" {
					if err := a.session.SetMode(types.RouteMode(mode)); err != nil {
						return userError(err)
					}
				}
				p := types.DefaultParameters()
				if cmd.Flags().Changed("rounds") {
					p.Rounds = rounds
				}
				if cmd.Flags().Changed("discount") {
					p.Discount = discount
				}
				if cmd.Flags().Changed("shock") {
					p.Shock = shock
				}
				if cmd.Flags().Changed("aggression") {
					p.Aggression = aggression
				}
				if err := a.session.SetParameters(p); err != nil {
					return userError(err)
				}
				if err := a.session.Simulate(ctx); err != nil {
					return userError(err)
				}
				if alt != "" {
					if err := a.session.Select(types.Alternative(alt)); err != nil {
						return err
					}
				}

				active, res := a.session.ActiveResult()
				snap, _ := a.session.LastSnapshot()
				if snap != nil {
					printAlternatives(out, &snap.Response, active)
				}
				st := a.session.State()
				printState(out, st)
				if res == nil {
					return nil
				}
				if outDir != "" {
					r, err := report.FromState(st, time.Now())
					if err != nil {
						return err
					}
					return writeReport(cmd, a, r, outDir)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "route preference: land, sea, air or auto")
	cmd.Flags().StringVar(&alt, "select", "", "alternative to display: cheapest, fastest or most_secure")
	cmd.Flags().StringVar(&outDir, "out", "", "write a report to this directory")
	cmd.Flags().BoolVar(&last, "last", false, "show the last persisted run instead of simulating")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "game-theory rounds")
	cmd.Flags().Float64Var(&discount, "discount", 0, "discount factor in (0,1]")
	cmd.Flags().Float64Var(&shock, "shock", 0, "shock magnitude")
	cmd.Flags().Float64Var(&aggression, "aggression", 0, "aggression in [0,1]")
	return cmd
}

func writeReport(cmd *cobra.Command, a *app, r *report.Report, outDir string) error {
	a.cfg.Output.Dir = outDir
	if err := a.cfg.ValidateExport(); err != nil {
		return err
	}
	paths, err := report.Render(r, outDir, a.cfg.Output.Formats)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", p)
	}
	return nil
}

func newRunsCmd(opts *appOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{Use: "runs", Short: "List recent simulation runs", RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			runs, err := a.store.ListRuns(limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		})
	}}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func newFactorsCmd(opts *appOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "factors", Short: "Inspect and edit simulation factors"}

	cmd.AddCommand(&cobra.Command{Use: "list", Short: "List confirmed factors and local drafts", RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			if err := a.factors.Refresh(ctx); err != nil {
				return userError(err)
			}
			printFactors(cmd.OutOrStdout(), a.factors.Snapshot().Data, a.drafts.All(), a.factors.Impacts())
			return nil
		})
	}})

	var effect, strength float64
	draft := &cobra.Command{Use: "draft <name>", Short: "Store a local factor edit", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			f, changed, err := a.session.RememberDraft(args[0], types.Factor{Effect: effect, Strength: strength})
			if err != nil {
				return userError(err)
			}
			if !changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged (%.2f / %.2f)\n", args[0], f.Effect, f.Strength)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s draft %.2f / %.2f\n", args[0], f.Effect, f.Strength)
			return nil
		})
	}}
	draft.Flags().Float64Var(&effect, "effect", 0, "effect in [-1,1]")
	draft.Flags().Float64Var(&strength, "strength", 0, "strength in [0,1]")
	_ = draft.MarkFlagRequired("effect")
	_ = draft.MarkFlagRequired("strength")
	cmd.AddCommand(draft)

	cmd.AddCommand(&cobra.Command{Use: "save <name>", Short: "Push a draft to the server", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			if err := a.factors.Refresh(ctx); err != nil {
				return userError(err)
			}
			f, err := a.drafts.Save(ctx, args[0])
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s saved %.2f / %.2f\n", args[0], f.Effect, f.Strength)
			return nil
		})
	}})

	var addEffect, addStrength float64
	add := &cobra.Command{Use: "add <name>", Short: "Create a factor on the server", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			if err := a.session.AddFactor(ctx, args[0], types.Factor{Effect: addEffect, Strength: addStrength}); err != nil {
				return userError(err)
			}
			printFactors(cmd.OutOrStdout(), a.factors.Snapshot().Data, a.drafts.All(), a.factors.Impacts())
			return nil
		})
	}}
	add.Flags().Float64Var(&addEffect, "effect", 0, "effect in [-1,1]")
	add.Flags().Float64Var(&addStrength, "strength", 0, "strength in [0,1]")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{Use: "delete <name>", Short: "Delete a factor and its draft", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			if err := a.session.DeleteFactor(ctx, args[0]); err != nil {
				return userError(err)
			}
			printFactors(cmd.OutOrStdout(), a.factors.Snapshot().Data, a.drafts.All(), a.factors.Impacts())
			return nil
		})
	}})

	var clearAll bool
	pending := &cobra.Command{Use: "drafts", Short: "List or clear unsaved factor edits", RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			if clearAll {
				names := a.session.ClearDrafts()
				fmt.Fprintf(out, "cleared %d drafts\n", len(names))
				return nil
			}
			names := a.drafts.Names()
			if len(names) == 0 {
				fmt.Fprintln(out, "no drafts")
				return nil
			}
			for _, name := range names {
				f, _ := a.drafts.Get(name)
				fmt.Fprintf(out, "%s %.2f / %.2f\n", name, f.Effect, f.Strength)
			}
			return nil
		})
	}}
	pending.Flags().BoolVar(&clearAll, "clear", false, "drop every draft")
	cmd.AddCommand(pending)

	cmd.AddCommand(&cobra.Command{Use: "reset <preset>", Short: "Reset factors to defaults, neutral, crisis or optimal", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			m, err := a.drafts.ApplyPreset(ctx, types.FactorPreset(args[0]))
			if err != nil {
				return userError(err)
			}
			printFactors(cmd.OutOrStdout(), m.Factors, a.drafts.All(), &m.Impacts)
			return nil
		})
	}})

	return cmd
}

func newGeoCmd(opts *appOptions) *cobra.Command {
	var value float64
	var mode string
	cmd := &cobra.Command{
		Use:   "geo <action> <a> <b>",
		Short: "Apply a geopolitical action to a lane",
		Long:  fmt.Sprintf("Actions: %v", gateway.GeoActions()),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := gateway.ParseGeoAction(args[0])
			if err != nil {
				return userError(err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rec, err := a.session.ApplyGeoAction(ctx, gateway.GeoRequest{
					Action: action,
					A:      args[1],
					B:      args[2],
					Value:  value,
					Mode:   types.RouteMode(mode),
				})
				if err != nil {
					return userError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), rec.Summary)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&value, "value", 0, "action parameter (percent, hours, delta or severity)")
	cmd.Flags().StringVar(&mode, "mode", "", "route mode for the mode action")
	return cmd
}

func newLedgerCmd(opts *appOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Show or clear the geo action history"}
	cmd.AddCommand(&cobra.Command{Use: "list", Short: "List recorded actions, newest first", RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			printLedger(cmd.OutOrStdout(), a.ledger.Entries())
			return nil
		})
	}})
	cmd.AddCommand(&cobra.Command{Use: "clear", Short: "Clear the action history", RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			a.ledger.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), "ledger cleared")
			return nil
		})
	}})
	return cmd
}

func newCatalogCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "catalog <countries|commodities|alliances|treaties|routes>",
		Short:     "List server catalog entries",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"countries", "commodities", "alliances", "treaties", "routes"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				switch args[0] {
				case "countries":
					countries, err := a.api.Countries(ctx)
					if err != nil {
						return userError(err)
					}
					printCountries(out, countries)
				case "commodities":
					items, err := a.api.Commodities(ctx)
					if err != nil {
						return userError(err)
					}
					printCommodities(out, items)
				case "alliances":
					items, err := a.api.Alliances(ctx)
					if err != nil {
						return userError(err)
					}
					t := newTable("Alliance", "Members", "Cohesion")
					for _, al := range items {
						t.Row(al.Name, strings.Join(al.Members, ", "), fmt.Sprintf("%.2f", al.Cohesion))
					}
					fmt.Fprintln(out, t.Render())
				case "treaties":
					items, err := a.api.Treaties(ctx)
					if err != nil {
						return userError(err)
					}
					t := newTable("Treaty", "Parties", "Stability", "Enforcement")
					for _, tr := range items {
						t.Row(tr.Name, strings.Join(tr.Parties, ", "), fmt.Sprintf("%.2f", tr.Stability), fmt.Sprintf("%.2f", tr.Enforcement))
					}
					fmt.Fprintln(out, t.Render())
				case "routes":
					if err := a.routes.Refresh(ctx); err != nil {
						return userError(err)
					}
					printRoutes(out, a.routes.Snapshot().Data)
				default:
					return fmt.Errorf("unknown catalog %q", args[0])
				}
				return nil
			})
		},
	}
}

func newResetCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{Use: "reset", Short: "Reset the simulation service to its initial data", RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			if err := a.session.Reset(ctx); err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "simulation service reset")
			printFactors(cmd.OutOrStdout(), a.factors.Snapshot().Data, a.drafts.All(), a.factors.Impacts())
			printRoutes(cmd.OutOrStdout(), a.routes.Snapshot().Data)
			return nil
		})
	}}
}
