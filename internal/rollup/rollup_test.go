package rollup

import (
	"reflect"
	"testing"
	"time"

	"hutracker/internal/domain"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func story(sprint string, original, completed float64, due string) domain.WorkItem {
	return domain.WorkItem{
		Title:            "story",
		State:            domain.StateInProgress,
		OriginalEstimate: original,
		CompletedWork:    completed,
		RemainingWork:    max(0, original-completed),
		StartDate:        "2024-07-01",
		DueDate:          due,
		Sprint:           sprint,
	}
}

func sampleInitiative() domain.Initiative {
	return domain.Initiative{
		ID:         "ini-1",
		Name:       "Checkout",
		StartDate:  "2024-07-01",
		DueDate:    "2024-07-26",
		SprintDays: 10,
		Stories: []domain.WorkItem{
			story("1", 20, 20, "2024-07-12"),
			story("1", 30, 10, "2024-07-12"),
			story("2", 10, 0, "2024-07-26"),
			story("", 5, 0, ""),
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleInitiative(), day("2024-07-16"), time.UTC)

	if s.TotalStories != 4 || s.TotalOriginal != 65 || s.TotalCompleted != 30 || s.TotalRemaining != 35 {
		t.Fatalf("unexpected totals %+v", s)
	}
	if s.TotalBusinessDays != 20 || s.TotalSprints != 2 {
		t.Fatalf("expected 20 days / 2 sprints, got %d / %d", s.TotalBusinessDays, s.TotalSprints)
	}
	if s.ExpectedPercentPerSprint != 50 {
		t.Fatalf("expected 50%% per sprint, got %v", s.ExpectedPercentPerSprint)
	}
	if s.CompletionPercent != 46.2 {
		t.Fatalf("expected completion 46.2, got %v", s.CompletionPercent)
	}
	if !s.HasDelay {
		t.Fatalf("expected delay flag")
	}
	if s.ProjectedDelay != 14 {
		t.Fatalf("expected projected delay 14, got %d", s.ProjectedDelay)
	}

	want := []SprintSummary{
		{
			Number: 1, Start: "2024-07-01", End: "2024-07-12", ProjectedEnd: "2024-07-19", Stories: 2,
			ExpectedHours: 50, CompletedHours: 30, DebtHours: 20, CompletedPercent: 60, DebtPercent: 40,
			CompletedBar: 60, DebtBar: 40,
		},
		{
			Number: 2, Start: "2024-07-15", End: "2024-07-26", ProjectedEnd: "2024-07-30", Stories: 1,
			ExpectedHours: 10, DebtHours: 10, DebtPercent: 100, DebtBar: 100,
		},
	}
	if !reflect.DeepEqual(s.Sprints, want) {
		t.Fatalf("sprints mismatch:\n got %+v\nwant %+v", s.Sprints, want)
	}
}

func TestSummarizeWithoutSchedule(t *testing.T) {
	ini := domain.Initiative{Name: "Loose", Stories: []domain.WorkItem{story("1", 10, 5, "")}}
	s := Summarize(ini, day("2024-07-16"), time.UTC)
	if s.TotalBusinessDays != 0 || s.TotalSprints != 0 || s.ExpectedPercentPerSprint != 0 || len(s.Sprints) != 0 {
		t.Fatalf("expected degraded schedule, got %+v", s)
	}
	if s.CompletionPercent != 50 {
		t.Fatalf("expected 50%% complete, got %v", s.CompletionPercent)
	}
	if s.HasDelay {
		t.Fatalf("items without due dates cannot be delayed")
	}
}

func TestSummarizeNoEstimate(t *testing.T) {
	ini := domain.Initiative{Name: "Empty", StartDate: "2024-07-01", DueDate: "2024-07-05", SprintDays: 3}
	s := Summarize(ini, day("2024-07-02"), time.UTC)
	if s.CompletionPercent != 0 || s.ProjectedDelay != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.TotalSprints != 2 || s.ExpectedPercentPerSprint != 50 {
		t.Fatalf("expected 2 sprints, got %+v", s)
	}
	if s.Sprints[1].ProjectedEnd != s.Sprints[1].End {
		t.Fatalf("sprint without debt keeps its end date")
	}
}

func TestExpectedPercentPerSprintRounding(t *testing.T) {
	ini := domain.Initiative{Name: "Thirds", StartDate: "2024-07-01", DueDate: "2024-07-19", SprintDays: 5}
	s := Summarize(ini, day("2024-07-01"), time.UTC)
	if s.TotalSprints != 3 || s.ExpectedPercentPerSprint != 33.33 {
		t.Fatalf("expected 3 sprints at 33.33%%, got %d at %v", s.TotalSprints, s.ExpectedPercentPerSprint)
	}
}

func TestProjectedDelay(t *testing.T) {
	cases := []struct {
		name  string
		ini   domain.Initiative
		today string
		want  int
	}{
		{"no stories", domain.Initiative{SprintDays: 10}, "2024-07-16", 0},
		{"no progress yet", domain.Initiative{
			StartDate: "2024-07-01", DueDate: "2024-07-12",
			Stories: []domain.WorkItem{story("", 20, 0, "")},
		}, "2024-07-03", 0},
		{"no progress past due", domain.Initiative{
			StartDate: "2024-07-01", DueDate: "2024-07-05",
			Stories: []domain.WorkItem{story("", 20, 0, "")},
		}, "2024-07-12", 5},
		{"dates from stories", domain.Initiative{
			Stories: []domain.WorkItem{story("", 18, 9, "2024-07-05")},
		}, "2024-07-03", 0},
		{"sample", sampleInitiative(), "2024-07-16", 14},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ProjectedDelay(tc.ini, day(tc.today), time.UTC); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestGroupTotals(t *testing.T) {
	items := []domain.WorkItem{
		{Initiative: "B", OriginalEstimate: 10, CompletedWork: 4, RemainingWork: 6},
		{Initiative: "", OriginalEstimate: 3, RemainingWork: 3},
		{Initiative: "B", OriginalEstimate: 5, CompletedWork: 5},
	}
	got := GroupTotals(items)
	want := []Totals{
		{Initiative: "B", Stories: 2, Original: 15, Completed: 9, Remaining: 6},
		{Initiative: "General", Stories: 1, Original: 3, Remaining: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestAvailableSprints(t *testing.T) {
	items := []domain.WorkItem{{Sprint: "2"}, {Sprint: ""}, {Sprint: "5"}, {Sprint: "2"}}
	got := AvailableSprints(items, 3)
	want := []string{"General", "2", "5", "1", "3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
