package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"hutracker/internal/app"
	"hutracker/internal/calendar"
	"hutracker/internal/config"
	"hutracker/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "hut",
	Short: "Hutracker CLI",
	Long: `Hutracker tracks user stories (HUs) against a business-day calendar.
- Workspace: the .hutracker directory holding the database and the session file.
- Initiative: a named group of stories with a start date, a due date and a sprint length in business days.
- Story: one unit of work with an original estimate and completed hours; remaining work is always derived.
- Sprints: fixed windows of business days counted from the initiative start.
- Views: summary, report, totals and burndown are computed on demand as of --today.
- Event log: every change is recorded; view it with 'hut events'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptional(viper.GetString("workspace"))
		if err != nil {
			return err
		}
		return logging.Init(logging.FromConfig(cfg.Logging, viper.GetBool("verbose")))
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local", "actor identifier")
	rootCmd.PersistentFlags().StringP("initiative", "i", "", "initiative id or name (overrides the session default)")
	rootCmd.PersistentFlags().String("today", "", "reference date YYYY-MM-DD for computed views")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "json", "actor-id", "initiative", "today", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(initiativeCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(totalsCmd())
	rootCmd.AddCommand(burndownCmd())
	rootCmd.AddCommand(sprintsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace, its config file and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path, created, err := config.WriteDefault(workspace)
			if err != nil {
				return err
			}
			ws, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer ws.Close()
			if created {
				fmt.Printf("Wrote %s\n", path)
			} else {
				fmt.Printf("Kept existing %s\n", path)
			}
			fmt.Printf("Workspace ready in %s\n", workspace)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			return printYAML(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := config.FromFile(path); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	})
	return cfg
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

// currentInitiative resolves --initiative, HUT_INITIATIVE, the session file
// or the only initiative, in that order.
func currentInitiative(ctx context.Context, ws *app.Workspace) (string, error) {
	ini, err := app.ResolveInitiative(ctx, ws.Engine.Repo, ws.Dir, viper.GetString("initiative"))
	if err != nil {
		return "", err
	}
	return ini.ID, nil
}

// todayFlag parses --today in the workspace timezone; unset means now.
func todayFlag(ws *app.Workspace) (time.Time, error) {
	raw := strings.TrimSpace(viper.GetString("today"))
	if raw == "" {
		return time.Time{}, nil
	}
	t, ok := calendar.ParseDate(raw, ws.Engine.Location)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid --today %q; expected YYYY-MM-DD", raw)
	}
	return t, nil
}

func actorID() string {
	return viper.GetString("actor-id")
}

// printJSONOrTable prints v as JSON with --json, otherwise as a table.
func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	renderTable(header, rows)
	return nil
}

func renderTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
