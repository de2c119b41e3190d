package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hutracker/internal/app"
	"hutracker/internal/domain"
	"hutracker/internal/engine"
)

func initiativeCmd() *cobra.Command {
	ini := &cobra.Command{Use: "initiative", Aliases: []string{"ini"}, Short: "Manage initiatives"}
	ini.AddCommand(initiativeCreateCmd())
	ini.AddCommand(initiativeListCmd())
	ini.AddCommand(initiativeShowCmd())
	ini.AddCommand(initiativeEditCmd())
	ini.AddCommand(initiativeDeleteCmd())
	ini.AddCommand(initiativeUseCmd())
	return ini
}

func initiativeCreateCmd() *cobra.Command {
	var name, start, due string
	var sprintDays int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an initiative",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				created, err := ws.Engine.CreateInitiative(ctx, engine.InitiativeCreateOptions{
					Name:       name,
					StartDate:  start,
					DueDate:    due,
					SprintDays: sprintDays,
					ActorID:    actorID(),
				})
				if err != nil {
					return err
				}
				return printInitiatives([]domain.Initiative{created}, created)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "initiative name")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().IntVar(&sprintDays, "sprint-days", 0, "business days per sprint (defaults from config)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func initiativeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List initiatives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				list, err := ws.Engine.ListInitiatives(ctx)
				if err != nil {
					return err
				}
				return printInitiatives(list, list)
			})
		},
	}
}

func initiativeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id|name]",
		Short: "Show an initiative with its stories",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ref, err := refOrCurrent(ctx, ws, args)
				if err != nil {
					return err
				}
				ini, err := ws.Engine.GetInitiative(ctx, ref)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ini)
				}
				if err := printInitiatives([]domain.Initiative{ini}, ini); err != nil {
					return err
				}
				return printItems(ini.Stories)
			})
		},
	}
}

func initiativeEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id|name> <field> <value>",
		Short: "Edit one initiative field (name, start_date, due_date, sprint_days)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ini, err := ws.Engine.UpdateInitiative(ctx, args[0], args[1], args[2], actorID())
				if err != nil {
					return err
				}
				return printInitiatives([]domain.Initiative{ini}, ini)
			})
		},
	}
}

func initiativeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete an initiative and its stories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.DeleteInitiative(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("Deleted initiative %s\n", args[0])
				return nil
			})
		},
	}
}

func initiativeUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id|name>",
		Short: "Set the current initiative for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ini, err := ws.Engine.GetInitiative(ctx, args[0])
				if err != nil {
					return err
				}
				if err := ws.Select(ini); err != nil {
					return err
				}
				fmt.Printf("Set %s=%s (%s) in %s\n", app.InitiativeEnv, ini.ID, ini.Name, app.EnvPath(ws.Dir))
				return nil
			})
		},
	}
}

func refOrCurrent(ctx context.Context, ws *app.Workspace, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	return currentInitiative(ctx, ws)
}

func printInitiatives(list []domain.Initiative, v any) error {
	rows := make([]table.Row, 0, len(list))
	for _, ini := range list {
		rows = append(rows, table.Row{ini.ID, ini.Name, dash(ini.StartDate), dash(ini.DueDate), ini.SprintDays, len(ini.Stories)})
	}
	return printJSONOrTable(v, table.Row{"ID", "Name", "Start", "Due", "Sprint Days", "Stories"}, rows)
}
