package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hutracker/internal/app"
	"hutracker/internal/domain"
	"hutracker/internal/ingest"
	"hutracker/internal/normalize"
)

func itemCmd() *cobra.Command {
	item := &cobra.Command{Use: "item", Aliases: []string{"hu"}, Short: "Manage stories"}
	item.AddCommand(itemAddCmd())
	item.AddCommand(itemEditCmd())
	item.AddCommand(itemRemoveCmd())
	item.AddCommand(itemListCmd())
	return item
}

func itemAddCmd() *cobra.Command {
	var title, state, assigned, start, due, completion, sprint string
	var estimate float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a story to the current initiative and make that initiative current",
		Long: `New stories start with no completed work; record progress afterwards
with 'hut item edit <id> completed_work <hours>'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := normalize.Record{string(normalize.FieldTitle): title}
			set := func(flag string, f normalize.Field, v any) {
				if cmd.Flags().Changed(flag) {
					rec[string(f)] = v
				}
			}
			set("state", normalize.FieldState, state)
			set("assigned-to", normalize.FieldAssignedTo, assigned)
			set("estimate", normalize.FieldOriginalEstimate, estimate)
			set("start", normalize.FieldStartDate, start)
			set("due", normalize.FieldDueDate, due)
			set("completion-date", normalize.FieldCompletionDate, completion)
			set("sprint", normalize.FieldSprint, sprint)
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				w, err := ws.AddItem(ctx, viper.GetString("initiative"), rec, actorID())
				if err != nil {
					return err
				}
				return printItemsAs([]domain.WorkItem{w}, w)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "story title")
	cmd.Flags().StringVar(&state, "state", "", "ToDo, In Progress or Done")
	cmd.Flags().StringVar(&assigned, "assigned-to", "", "assignee email")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "original estimate in hours")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringVar(&completion, "completion-date", "", "completion date YYYY-MM-DD")
	cmd.Flags().StringVar(&sprint, "sprint", "", "sprint number")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func itemEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <field> <value>",
		Short: "Edit one story field; labels, camelCase and snake_case names are accepted",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				w, err := ws.Engine.EditItem(ctx, args[0], args[1], args[2], actorID())
				if err != nil {
					return err
				}
				return printItemsAs([]domain.WorkItem{w}, w)
			})
		},
	}
}

func itemRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a story",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.RemoveItem(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("Removed story %s\n", args[0])
				return nil
			})
		},
	}
}

func itemListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stories of the current initiative",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ref, err := currentInitiative(ctx, ws)
				if err != nil {
					return err
				}
				ini, err := ws.Engine.GetInitiative(ctx, ref)
				if err != nil {
					return err
				}
				return printItems(ini.Stories)
			})
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the current initiative's stories with rows from a JSON or YAML file",
		Long: `Rows may be a list of records, a list of lists with a header row, or a
mapping holding either under rows, items, stories or hus. Keys may be
spreadsheet labels ("Original Estimate"), camelCase or snake_case.
The import is rejected as a whole when any row is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := ingest.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ref, err := currentInitiative(ctx, ws)
				if err != nil {
					return err
				}
				items, err := ws.Engine.ImportItems(ctx, ref, rows, actorID())
				if err != nil {
					return err
				}
				return printItems(items)
			})
		},
	}
}

func printItems(items []domain.WorkItem) error {
	return printItemsAs(items, items)
}

func printItemsAs(items []domain.WorkItem, v any) error {
	rows := make([]table.Row, 0, len(items))
	for _, w := range items {
		extra := ""
		if w.IsAdditional {
			extra = "yes"
		}
		rows = append(rows, table.Row{
			w.ID, w.Title, w.State, dash(w.AssignedTo), dash(w.Sprint),
			w.OriginalEstimate, w.CompletedWork, w.RemainingWork,
			dash(w.StartDate), dash(w.DueDate), dash(extra),
		})
	}
	return printJSONOrTable(v, table.Row{"ID", "Title", "State", "Assigned", "Sprint", "Estimate", "Completed", "Remaining", "Start", "Due", "Additional"}, rows)
}
