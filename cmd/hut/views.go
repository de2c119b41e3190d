package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hutracker/internal/app"
	"hutracker/internal/engine"
	"hutracker/internal/rollup"
)

func summaryCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show sprint rollup, completion and projected delay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				today, err := todayFlag(ws)
				if err != nil {
					return err
				}
				var sums []rollup.InitiativeSummary
				if all {
					if sums, err = ws.Engine.Summaries(ctx, today); err != nil {
						return err
					}
				} else {
					ref, err := currentInitiative(ctx, ws)
					if err != nil {
						return err
					}
					sum, err := ws.Engine.Summary(ctx, ref, today)
					if err != nil {
						return err
					}
					sums = append(sums, sum)
				}
				if viper.GetBool("json") {
					if all {
						return printJSON(sums)
					}
					return printJSON(sums[0])
				}
				for _, s := range sums {
					printSummary(s)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "summarize every initiative")
	return cmd
}

func printSummary(s rollup.InitiativeSummary) {
	delay := "on track"
	if s.HasDelay {
		delay = "delayed"
	}
	if s.ProjectedDelay > 0 {
		delay += fmt.Sprintf(", projected %d business days late", s.ProjectedDelay)
	}
	fmt.Printf("%s  %s -> %s  %.1f%% complete  %.1f/%.1f h  (%s)\n",
		s.Name, dash(s.StartDate), dash(s.DueDate), s.CompletionPercent, s.TotalCompleted, s.TotalOriginal, delay)
	rows := make([]table.Row, 0, len(s.Sprints))
	for _, sp := range s.Sprints {
		rows = append(rows, table.Row{
			sp.Number, sp.Start, sp.End, sp.ProjectedEnd, sp.Stories,
			sp.ExpectedHours, sp.CompletedHours, sp.DebtHours,
			fmt.Sprintf("%.1f%%", sp.CompletedPercent), fmt.Sprintf("%.1f%%", sp.DebtPercent),
		})
	}
	renderTable(table.Row{"Sprint", "Start", "End", "Projected End", "Stories", "Expected", "Completed", "Debt", "Done %", "Debt %"}, rows)
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Per-story elapsed time, capacity and delay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				today, err := todayFlag(ws)
				if err != nil {
					return err
				}
				ref, err := currentInitiative(ctx, ws)
				if err != nil {
					return err
				}
				reports, err := ws.Engine.Reports(ctx, ref, today)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(reports))
				for _, r := range reports {
					rows = append(rows, table.Row{
						r.Title, r.State, dash(r.Sprint), dash(r.DueDate),
						r.ElapsedDays, r.ElapsedEffectiveHours, r.CompletedHours,
						r.CapacityDaysUntilDue, r.DelayDays, r.Deviation,
					})
				}
				return printJSONOrTable(reports, table.Row{"Title", "State", "Sprint", "Due", "Elapsed Days", "Elapsed h", "Completed h", "Capacity Days", "Delay Days", "Deviation"}, rows)
			})
		},
	}
}

func totalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Hours per initiative across the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				totals, err := ws.Engine.Totals(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(totals))
				for _, t := range totals {
					rows = append(rows, table.Row{t.Initiative, t.Stories, t.Original, t.Completed, t.Remaining})
				}
				return printJSONOrTable(totals, table.Row{"Initiative", "Stories", "Original", "Completed", "Remaining"}, rows)
			})
		},
	}
}

func burndownCmd() *cobra.Command {
	var sprint string
	var baseline float64
	cmd := &cobra.Command{
		Use:   "burndown",
		Short: "Projected burndown for the initiative or one sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				today, err := todayFlag(ws)
				if err != nil {
					return err
				}
				ref, err := currentInitiative(ctx, ws)
				if err != nil {
					return err
				}
				opts := engine.BurndownOptions{Sprint: sprint, Today: today}
				if cmd.Flags().Changed("baseline") {
					opts.Baseline = &baseline
				}
				res, err := ws.Engine.Burndown(ctx, ref, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%.1f h remaining  velocity %.2f h/day  %d of %d days elapsed  projected %d days  delay %d\n",
					res.Remaining, res.Velocity, res.DaysElapsed, res.TotalDays, res.ProjectedDays, res.Delay)
				if res.Truncated {
					fmt.Println("projection truncated")
				}
				rows := make([]table.Row, 0, len(res.Points))
				for _, p := range res.Points {
					base := "-"
					if p.Baseline != nil {
						base = fmt.Sprintf("%.1f", *p.Baseline)
					}
					rows = append(rows, table.Row{p.Index, p.Date, base, fmt.Sprintf("%.1f", p.Projected), fmt.Sprintf("%.1f", p.Worked), dash(string(p.Status))})
				}
				renderTable(table.Row{"Day", "Date", "Ideal", "Projected", "Worked", "Status"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sprint, "sprint", "", "sprint number; empty or General for the whole initiative")
	cmd.Flags().Float64Var(&baseline, "baseline", 0, "starting height of the ideal line in hours")
	return cmd
}

func sprintsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sprints",
		Short: "List sprint selectors of the current initiative",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				today, err := todayFlag(ws)
				if err != nil {
					return err
				}
				ref, err := currentInitiative(ctx, ws)
				if err != nil {
					return err
				}
				sprints, err := ws.Engine.AvailableSprints(ctx, ref, today)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sprints)
				}
				fmt.Println(strings.Join(sprints, "\n"))
				return nil
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				evts, err := ws.Engine.LatestEvents(ctx, n, viper.GetString("initiative"), evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(evts))
				for _, e := range evts {
					rows = append(rows, table.Row{e.ID, e.TS, e.Type, e.EntityKind, e.EntityID, e.ActorID})
				}
				return printJSONOrTable(evts, table.Row{"ID", "Time", "Type", "Kind", "Entity", "Actor"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "initiative or item")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}
