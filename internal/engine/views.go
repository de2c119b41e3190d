package engine

import (
	"context"
	"time"

	"hutracker/internal/burndown"
	"hutracker/internal/rollup"
	"hutracker/internal/tracking"
)

func (e Engine) Summary(ctx context.Context, ref string, today time.Time) (rollup.InitiativeSummary, error) {
	ini, err := e.GetInitiative(ctx, ref)
	if err != nil {
		return rollup.InitiativeSummary{}, err
	}
	return rollup.Summarize(ini, e.today(today), e.loc()), nil
}

func (e Engine) Summaries(ctx context.Context, today time.Time) ([]rollup.InitiativeSummary, error) {
	list, err := e.ListInitiatives(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rollup.InitiativeSummary, 0, len(list))
	for _, ini := range list {
		out = append(out, rollup.Summarize(ini, e.today(today), e.loc()))
	}
	return out, nil
}

type BurndownOptions struct {
	// Sprint restricts the chart to one sprint; empty or "General" keeps all.
	Sprint   string
	Baseline *float64
	Today    time.Time
}

func (e Engine) Burndown(ctx context.Context, ref string, opts BurndownOptions) (burndown.Result, error) {
	ini, err := e.GetInitiative(ctx, ref)
	if err != nil {
		return burndown.Result{}, err
	}
	return burndown.Project(burndown.ForSprint(ini.Stories, opts.Sprint), burndown.Options{
		SprintDays: ini.SprintDays,
		Baseline:   opts.Baseline,
		Today:      e.today(opts.Today),
		Location:   e.loc(),
	}), nil
}

func (e Engine) Reports(ctx context.Context, ref string, today time.Time) ([]tracking.ItemReport, error) {
	ini, err := e.GetInitiative(ctx, ref)
	if err != nil {
		return nil, err
	}
	return tracking.Reports(ini.Stories, e.today(today), e.loc()), nil
}

// Totals sums hours per initiative name across the workspace.
func (e Engine) Totals(ctx context.Context) ([]rollup.Totals, error) {
	items, err := e.Repo.ListItems(ctx, "")
	if err != nil {
		return nil, err
	}
	return rollup.GroupTotals(items), nil
}

func (e Engine) AvailableSprints(ctx context.Context, ref string, today time.Time) ([]string, error) {
	ini, err := e.GetInitiative(ctx, ref)
	if err != nil {
		return nil, err
	}
	sum := rollup.Summarize(ini, e.today(today), e.loc())
	return rollup.AvailableSprints(ini.Stories, sum.TotalSprints), nil
}
