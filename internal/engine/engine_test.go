package engine_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"hutracker/internal/config"
	"hutracker/internal/db"
	"hutracker/internal/engine"
	"hutracker/internal/migrate"
	"hutracker/internal/normalize"
	"hutracker/internal/repo"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Publisher *recordingPublisher
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Calendar.Timezone = "UTC"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC) }
	pub := &recordingPublisher{}
	eng.Publisher = pub
	return testEnv{Engine: eng, Ctx: context.Background(), Publisher: pub}
}

func (env testEnv) checkout(t *testing.T) string {
	t.Helper()
	ini, err := env.Engine.CreateInitiative(env.Ctx, engine.InitiativeCreateOptions{
		Name: "Checkout", StartDate: "2024-07-01", DueDate: "2024-07-26", SprintDays: 10, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create initiative: %v", err)
	}
	return ini.ID
}

func TestInitiativeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.checkout(t)

	_, err := env.Engine.CreateInitiative(env.Ctx, engine.InitiativeCreateOptions{Name: "Checkout"})
	if !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("expected conflict on duplicate name, got %v", err)
	}
	_, err = env.Engine.CreateInitiative(env.Ctx, engine.InitiativeCreateOptions{Name: "Bad", StartDate: "2024-07-10", DueDate: "2024-07-01"})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for reversed dates, got %v", err)
	}
	defaulted, err := env.Engine.CreateInitiative(env.Ctx, engine.InitiativeCreateOptions{Name: "Search"})
	if err != nil || defaulted.SprintDays != 10 {
		t.Fatalf("sprint days should default from config: %+v %v", defaulted, err)
	}

	ini, err := env.Engine.UpdateInitiative(env.Ctx, "Checkout", "sprint_days", "5", "tester")
	if err != nil || ini.SprintDays != 5 {
		t.Fatalf("update sprint days: %+v %v", ini, err)
	}
	if _, err := env.Engine.UpdateInitiative(env.Ctx, id, "name", "Search", "tester"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("rename onto existing name should conflict, got %v", err)
	}
	if _, err := env.Engine.UpdateInitiative(env.Ctx, id, "stories", nil, "tester"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("stories are not editable, got %v", err)
	}

	if err := env.Engine.DeleteInitiative(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetInitiative(env.Ctx, id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	want := []string{
		"hutracker.initiative.created",
		"hutracker.initiative.created",
		"hutracker.initiative.updated",
		"hutracker.initiative.deleted",
	}
	if !reflect.DeepEqual(env.Publisher.topics, want) {
		t.Fatalf("published %v, want %v", env.Publisher.topics, want)
	}
}

func TestAddItem(t *testing.T) {
	env := newTestEnv(t)
	id := env.checkout(t)

	w, err := env.Engine.AddItem(env.Ctx, id, normalize.Record{
		"Title": "Login", "Original Estimate": "18", "Completed Work": "7",
		"Start Date": "2024-07-01", "Due Date": "2024-07-05", "Sprint": "1",
	}, "tester")
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if w.CompletedWork != 0 || w.RemainingWork != 18 || w.Initiative != "Checkout" || w.IsAdditional {
		t.Fatalf("unexpected new item %+v", w)
	}

	late, err := env.Engine.AddItem(env.Ctx, "Checkout", normalize.Record{
		"title": "Receipts", "original_estimate": 9, "start_date": "2024-07-02", "due_date": "2024-08-01",
	}, "tester")
	if err != nil || !late.IsAdditional {
		t.Fatalf("item due after the initiative must be additional: %+v %v", late, err)
	}

	cases := []struct {
		name string
		rec  normalize.Record
	}{
		{"missing title", normalize.Record{"original_estimate": 4}},
		{"sprint out of range", normalize.Record{"title": "x", "sprint": 3}},
		{"start before initiative", normalize.Record{"title": "x", "start_date": "2024-06-28"}},
		{"start after initiative due", normalize.Record{"title": "x", "start_date": "2024-07-29", "due_date": "2024-07-30"}},
		{"due before start", normalize.Record{"title": "x", "start_date": "2024-07-10", "due_date": "2024-07-09"}},
		{"non numeric estimate", normalize.Record{"title": "x", "Original Estimate": "lots"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.Engine.AddItem(env.Ctx, id, tc.rec, "tester"); !errors.Is(err, engine.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	ini, err := env.Engine.GetInitiative(env.Ctx, id)
	if err != nil || len(ini.Stories) != 2 || ini.Stories[0].ID != w.ID {
		t.Fatalf("expected two stories in order, got %+v %v", ini.Stories, err)
	}
}

func TestEditItem(t *testing.T) {
	env := newTestEnv(t)
	id := env.checkout(t)
	w, err := env.Engine.AddItem(env.Ctx, id, normalize.Record{"title": "Login", "original_estimate": 18, "start_date": "2024-07-01", "due_date": "2024-07-05"}, "tester")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	w, err = env.Engine.EditItem(env.Ctx, w.ID, "Completed Work", "4", "tester")
	if err != nil || w.CompletedWork != 4 || w.RemainingWork != 14 {
		t.Fatalf("edit completed: %+v %v", w, err)
	}
	w, err = env.Engine.EditItem(env.Ctx, w.ID, "originalEstimate", 27, "tester")
	if err != nil || w.RemainingWork != 23 {
		t.Fatalf("edit estimate: %+v %v", w, err)
	}
	w, err = env.Engine.EditItem(env.Ctx, w.ID, "due_date", "2024-07-30", "tester")
	if err != nil || !w.IsAdditional {
		t.Fatalf("late due date should flag additional scope: %+v %v", w, err)
	}
	w, err = env.Engine.EditItem(env.Ctx, w.ID, "state", "in progress", "tester")
	if err != nil || w.State != "In Progress" {
		t.Fatalf("edit state: %+v %v", w, err)
	}

	for _, tc := range []struct {
		field string
		value any
	}{
		{"Remaining Work", 1},
		{"initiative", "Other"},
		{"completed_work", 40},
		{"completed_work", "four"},
		{"state", "Blocked"},
		{"colour", "red"},
	} {
		if _, err := env.Engine.EditItem(env.Ctx, w.ID, tc.field, tc.value, "tester"); !errors.Is(err, engine.ErrValidation) {
			t.Fatalf("edit %s=%v: expected validation error, got %v", tc.field, tc.value, err)
		}
	}

	stored, err := env.Engine.Repo.GetItem(env.Ctx, w.ID)
	if err != nil || stored.CompletedWork != 4 || stored.OriginalEstimate != 27 {
		t.Fatalf("rejected edits must not persist: %+v %v", stored, err)
	}

	if err := env.Engine.RemoveItem(env.Ctx, w.ID, "tester"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := env.Engine.RemoveItem(env.Ctx, w.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second remove should be not found, got %v", err)
	}
}

func TestImportItems(t *testing.T) {
	env := newTestEnv(t)
	id := env.checkout(t)
	if _, err := env.Engine.AddItem(env.Ctx, id, normalize.Record{"title": "Old"}, "tester"); err != nil {
		t.Fatalf("add: %v", err)
	}
	rows := []normalize.Record{
		{"Title": "Login", "Original Estimate": 20, "Completed Work": 20, "State": "Done", "Sprint": 1, "Due Date": "2024-07-12"},
		{"Title": "Cart", "Original Estimate": 10, "Due Date": "2024-07-30", "Initiative": "Legacy"},
	}
	items, err := env.Engine.ImportItems(env.Ctx, id, rows, "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(items) != 2 || items[0].Initiative != "Checkout" || items[1].Initiative != "Checkout" {
		t.Fatalf("imported items must land in the target initiative: %+v", items)
	}
	if !items[1].IsAdditional || items[0].IsAdditional {
		t.Fatalf("additional flags: %v %v", items[0].IsAdditional, items[1].IsAdditional)
	}
	again, err := env.Engine.ImportItems(env.Ctx, id, rows, "tester")
	if err != nil || again[0].ID != items[0].ID {
		t.Fatalf("reimport should keep ids: %v", err)
	}
	ini, _ := env.Engine.GetInitiative(env.Ctx, id)
	if len(ini.Stories) != 2 {
		t.Fatalf("import must replace stories, got %d", len(ini.Stories))
	}

	_, err = env.Engine.ImportItems(env.Ctx, id, []normalize.Record{{"Title": "ok"}, {"Title": "bad", "Original Estimate": "abc"}}, "tester")
	var ierr *engine.ImportError
	if !errors.As(err, &ierr) || !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected import error, got %v", err)
	}
	if len(ierr.Result.Invalid) != 1 || ierr.Result.Invalid[0].Index != 1 {
		t.Fatalf("unexpected invalid rows %+v", ierr.Result.Invalid)
	}
	if _, err := env.Engine.ImportItems(env.Ctx, id, nil, "tester"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("nil rows must be rejected, got %v", err)
	}
	ini, _ = env.Engine.GetInitiative(env.Ctx, id)
	if len(ini.Stories) != 2 {
		t.Fatalf("rejected import must leave stories alone, got %d", len(ini.Stories))
	}
}

func TestViews(t *testing.T) {
	env := newTestEnv(t)
	id := env.checkout(t)
	rows := []normalize.Record{
		{"title": "a", "original_estimate": 20, "completed_work": 20, "sprint": 1, "start_date": "2024-07-01", "due_date": "2024-07-12", "state": "In Progress"},
		{"title": "b", "original_estimate": 30, "completed_work": 10, "sprint": 1, "start_date": "2024-07-01", "due_date": "2024-07-12", "state": "In Progress"},
		{"title": "c", "original_estimate": 10, "sprint": 2, "start_date": "2024-07-01", "due_date": "2024-07-26", "state": "In Progress"},
		{"title": "d", "original_estimate": 5, "start_date": "2024-07-01", "state": "In Progress"},
	}
	if _, err := env.Engine.ImportItems(env.Ctx, id, rows, "tester"); err != nil {
		t.Fatalf("import: %v", err)
	}
	today := time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC)

	sum, err := env.Engine.Summary(env.Ctx, "Checkout", today)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalSprints != 2 || sum.CompletionPercent != 46.2 || !sum.HasDelay || sum.ProjectedDelay != 14 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	all, err := env.Engine.Summaries(env.Ctx, today)
	if err != nil || len(all) != 1 || all[0].ID != id {
		t.Fatalf("summaries: %+v %v", all, err)
	}

	bd, err := env.Engine.Burndown(env.Ctx, id, engine.BurndownOptions{Sprint: "1", Today: today})
	if err != nil || bd.TotalOriginal != 50 || bd.TotalCompleted != 30 {
		t.Fatalf("sprint burndown: %+v %v", bd, err)
	}

	reports, err := env.Engine.Reports(env.Ctx, id, today)
	if err != nil || len(reports) != 4 || reports[0].Deviation != "Completed" {
		t.Fatalf("reports: %+v %v", reports, err)
	}

	totals, err := env.Engine.Totals(env.Ctx)
	if err != nil || len(totals) != 1 || totals[0].Original != 65 || totals[0].Remaining != 35 {
		t.Fatalf("totals: %+v %v", totals, err)
	}

	sprints, err := env.Engine.AvailableSprints(env.Ctx, id, today)
	if err != nil || !reflect.DeepEqual(sprints, []string{"General", "1", "2"}) {
		t.Fatalf("sprints: %v %v", sprints, err)
	}

	evts, err := env.Engine.LatestEvents(env.Ctx, 10, "Checkout", "", "", "")
	if err != nil || len(evts) != 2 || evts[0].Type != "items.imported" {
		t.Fatalf("events: %+v %v", evts, err)
	}
}
