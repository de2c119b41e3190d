package server

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"hutracker/internal/burndown"
	"hutracker/internal/domain"
	"hutracker/internal/engine"
	"hutracker/internal/ingest"
	"hutracker/internal/normalize"
	"hutracker/internal/rollup"
	"hutracker/internal/tracking"
)

var commonErrors = []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError}

// InitiativePath binds the {id} segment; huma only reads exported
// embedded structs.
type InitiativePath struct {
	ID string `path:"id" doc:"Initiative id or name"`
}

func registerInitiatives(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-initiative",
		Method:        http.MethodPost,
		Path:          "/initiatives",
		Summary:       "Create initiative",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateInitiativeRequest `json:"body"`
	}) (*struct {
		Body domain.Initiative `json:"body"`
	}, error) {
		ini, err := e.CreateInitiative(ctx, engine.InitiativeCreateOptions{
			Name:       input.Body.Name,
			StartDate:  input.Body.StartDate,
			DueDate:    input.Body.DueDate,
			SprintDays: input.Body.SprintDays,
			ActorID:    actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Initiative `json:"body"`
		}{Body: ini}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-initiatives",
		Method:      http.MethodGet,
		Path:        "/initiatives",
		Summary:     "List initiatives with their stories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Initiative `json:"body"`
	}, error) {
		list, err := e.ListInitiatives(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Initiative `json:"body"`
		}{Body: nonNilSlice(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-initiative",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}",
		Summary:     "Get initiative",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *InitiativePath) (*struct {
		Body domain.Initiative `json:"body"`
	}, error) {
		ini, err := e.GetInitiative(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Initiative `json:"body"`
		}{Body: ini}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-initiative",
		Method:      http.MethodPatch,
		Path:        "/initiatives/{id}",
		Summary:     "Edit one initiative field",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body EditRequest `json:"body"`
	}) (*struct {
		Body domain.Initiative `json:"body"`
	}, error) {
		ini, err := e.UpdateInitiative(ctx, input.ID, input.Body.Field, input.Body.Value, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Initiative `json:"body"`
		}{Body: ini}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-initiative",
		Method:        http.MethodDelete,
		Path:          "/initiatives/{id}",
		Summary:       "Delete initiative and its stories",
		DefaultStatus: http.StatusNoContent,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *InitiativePath) (*struct{}, error) {
		if err := e.DeleteInitiative(ctx, input.ID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/items",
		Summary:     "List an initiative's stories",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *InitiativePath) (*struct {
		Body []domain.WorkItem `json:"body"`
	}, error) {
		ini, err := e.GetInitiative(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkItem `json:"body"`
		}{Body: nonNilSlice(ini.Stories)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-item",
		Method:        http.MethodPost,
		Path:          "/initiatives/{id}/items",
		Summary:       "Add a story",
		Description:   "Accepts spreadsheet labels, camelCase or snake_case keys. Completed work always starts at zero.",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body map[string]any `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		w, err := e.AddItem(ctx, input.ID, normalize.Record(input.Body), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-items",
		Method:      http.MethodPut,
		Path:        "/initiatives/{id}/items",
		Summary:     "Replace stories from rows",
		Description: "Body is a JSON or YAML list of records, a header table, or an object wrapping one under rows/items/stories/hus.",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		RawBody []byte
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		rows, err := ingest.ReadRows(bytes.NewReader(input.RawBody))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		items, err := e.ImportItems(ctx, input.ID, rows, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Count: len(items), Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-item",
		Method:      http.MethodPatch,
		Path:        "/items/{id}",
		Summary:     "Edit one story field",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body EditRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		w, err := e.EditItem(ctx, input.ID, input.Body.Field, input.Body.Value, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-item",
		Method:        http.MethodDelete,
		Path:          "/items/{id}",
		Summary:       "Remove a story",
		DefaultStatus: http.StatusNoContent,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.RemoveItem(ctx, input.ID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// TodayQuery binds the optional reference date of computed views.
type TodayQuery struct {
	Today string `query:"today" doc:"Reference date (YYYY-MM-DD); defaults to the server clock"`
}

func registerViews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "initiative-summary",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/summary",
		Summary:     "Sprint rollup and projected delay",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		InitiativePath
		TodayQuery
	}) (*struct {
		Body rollup.InitiativeSummary `json:"body"`
	}, error) {
		today, err := parseToday(e, input.Today)
		if err != nil {
			return nil, err
		}
		sum, err := e.Summary(ctx, input.ID, today)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rollup.InitiativeSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "initiative-burndown",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/burndown",
		Summary:     "Burndown curve and projected delay",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		InitiativePath
		TodayQuery
		Sprint   string `query:"sprint" doc:"Sprint number; empty or General for the whole initiative"`
		Baseline string `query:"baseline" doc:"Starting height of the ideal line in hours"`
	}) (*struct {
		Body burndown.Result `json:"body"`
	}, error) {
		today, err := parseToday(e, input.Today)
		if err != nil {
			return nil, err
		}
		opts := engine.BurndownOptions{Sprint: input.Sprint, Today: today}
		if strings.TrimSpace(input.Baseline) != "" {
			v, perr := strconv.ParseFloat(strings.TrimSpace(input.Baseline), 64)
			if perr != nil || v < 0 {
				return nil, newAPIError(http.StatusBadRequest, "validation_error", "baseline must be a non-negative number", map[string]any{"baseline": input.Baseline})
			}
			opts.Baseline = &v
		}
		res, err := e.Burndown(ctx, input.ID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body burndown.Result `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "initiative-reports",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/reports",
		Summary:     "Per-story elapsed time, capacity and delay",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		InitiativePath
		TodayQuery
	}) (*struct {
		Body []tracking.ItemReport `json:"body"`
	}, error) {
		today, err := parseToday(e, input.Today)
		if err != nil {
			return nil, err
		}
		reports, err := e.Reports(ctx, input.ID, today)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []tracking.ItemReport `json:"body"`
		}{Body: nonNilSlice(reports)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "initiative-sprints",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/sprints",
		Summary:     "Sprint choices for stories",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		InitiativePath
		TodayQuery
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		today, err := parseToday(e, input.Today)
		if err != nil {
			return nil, err
		}
		sprints, err := e.AvailableSprints(ctx, input.ID, today)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: sprints}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-summaries",
		Method:      http.MethodGet,
		Path:        "/summaries",
		Summary:     "Rollups of every initiative",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *TodayQuery) (*struct {
		Body []rollup.InitiativeSummary `json:"body"`
	}, error) {
		today, err := parseToday(e, input.Today)
		if err != nil {
			return nil, err
		}
		list, err := e.Summaries(ctx, today)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []rollup.InitiativeSummary `json:"body"`
		}{Body: nonNilSlice(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "totals",
		Method:      http.MethodGet,
		Path:        "/totals",
		Summary:     "Hour totals per initiative name",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []rollup.Totals `json:"body"`
	}, error) {
		totals, err := e.Totals(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []rollup.Totals `json:"body"`
		}{Body: totals}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent events, newest first",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Initiative string `query:"initiative"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"initiative,item"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		evts, err := e.LatestEvents(ctx, input.Limit, input.Initiative, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(evts))
		for _, evt := range evts {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
