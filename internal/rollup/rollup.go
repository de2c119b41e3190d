// Package rollup aggregates an initiative's stories into sprint and
// initiative level schedule figures.
package rollup

import (
	"math"
	"time"

	"hutracker/internal/calendar"
	"hutracker/internal/domain"
	"hutracker/internal/tracking"
)

type SprintSummary struct {
	Number           int     `json:"number"`
	Start            string  `json:"start"`
	End              string  `json:"end"`
	ProjectedEnd     string  `json:"projected_end"`
	Stories          int     `json:"stories"`
	ExpectedHours    float64 `json:"expected_hours"`
	CompletedHours   float64 `json:"completed_hours"`
	DebtHours        float64 `json:"debt_hours"`
	CompletedPercent float64 `json:"completed_percent"`
	DebtPercent      float64 `json:"debt_percent"`
	// Bars are the percentages clamped to 0..100 for display.
	CompletedBar float64 `json:"completed_bar"`
	DebtBar      float64 `json:"debt_bar"`
}

type InitiativeSummary struct {
	ID                       string          `json:"id,omitempty"`
	Name                     string          `json:"name"`
	StartDate                string          `json:"start_date,omitempty"`
	DueDate                  string          `json:"due_date,omitempty"`
	SprintDays               int             `json:"sprint_days"`
	TotalStories             int             `json:"total_stories"`
	TotalOriginal            float64         `json:"total_original"`
	TotalCompleted           float64         `json:"total_completed"`
	TotalRemaining           float64         `json:"total_remaining"`
	TotalBusinessDays        int             `json:"total_business_days"`
	TotalSprints             int             `json:"total_sprints"`
	ExpectedPercentPerSprint float64         `json:"expected_percent_per_sprint"`
	CompletionPercent        float64         `json:"completion_percent"`
	HasDelay                 bool            `json:"has_delay"`
	ProjectedDelay           int             `json:"projected_delay"`
	Sprints                  []SprintSummary `json:"sprints"`
}

// Summarize computes the schedule rollup of ini as of today. Missing dates
// or sprint length degrade the sprint figures to zero.
func Summarize(ini domain.Initiative, today time.Time, loc *time.Location) InitiativeSummary {
	if loc == nil {
		loc = time.Local
	}
	today = calendar.StartOfDay(today.In(loc))
	s := InitiativeSummary{
		ID:           ini.ID,
		Name:         ini.Name,
		StartDate:    ini.StartDate,
		DueDate:      ini.DueDate,
		SprintDays:   ini.SprintDays,
		TotalStories: len(ini.Stories),
		Sprints:      []SprintSummary{},
	}
	for _, it := range ini.Stories {
		s.TotalOriginal += it.OriginalEstimate
		s.TotalCompleted += it.CompletedWork
		s.TotalRemaining += it.RemainingWork
	}

	start, hasStart := calendar.ParseDate(ini.StartDate, loc)
	due, hasDue := calendar.ParseDate(ini.DueDate, loc)
	if hasStart && hasDue {
		s.TotalBusinessDays = calendar.BusinessDaysBetween(start, due)
	}
	if hasStart && hasDue && ini.SprintDays > 0 {
		s.TotalSprints = int(math.Ceil(float64(s.TotalBusinessDays) / float64(ini.SprintDays)))
	}
	if s.TotalSprints > 0 {
		s.ExpectedPercentPerSprint = tracking.Round(100/float64(s.TotalSprints), 2)
	}
	s.CompletionPercent = percent(s.TotalCompleted, s.TotalOriginal)

	for num := 1; num <= s.TotalSprints; num++ {
		s.Sprints = append(s.Sprints, summarizeSprint(num, start, ini.SprintDays, ini.Stories, today))
	}
	s.HasDelay = HasDelay(ini.Stories, today, loc)
	s.ProjectedDelay = ProjectedDelay(ini, today, loc)
	return s
}

func summarizeSprint(num int, iniStart time.Time, sprintDays int, items []domain.WorkItem, today time.Time) SprintSummary {
	start := calendar.AddBusinessDays(iniStart, (num-1)*sprintDays)
	end := calendar.AddBusinessDays(start, sprintDays-1)
	ss := SprintSummary{Number: num, Start: calendar.FormatDate(start), End: calendar.FormatDate(end)}
	for _, it := range items {
		if n, ok := it.SprintNumber(); !ok || n != num {
			continue
		}
		ss.Stories++
		ss.ExpectedHours += it.OriginalEstimate
		ss.CompletedHours += it.CompletedWork
		ss.DebtHours += it.RemainingWork
	}
	ss.CompletedPercent = percent(ss.CompletedHours, ss.ExpectedHours)
	ss.DebtPercent = percent(ss.DebtHours, ss.ExpectedHours)
	ss.CompletedBar = clampPercent(ss.CompletedPercent)
	ss.DebtBar = clampPercent(ss.DebtPercent)

	projected := end
	if ss.DebtHours > 0 {
		delayDays := 0
		if today.After(calendar.StartOfDay(end)) {
			delayDays = max(0, calendar.BusinessDaysBetween(end, today)-1)
		}
		extraDays := int(math.Ceil(ss.DebtHours / tracking.WorkHoursPerDay))
		projected = calendar.AddBusinessDays(end, delayDays+extraDays)
	}
	ss.ProjectedEnd = calendar.FormatDate(projected)
	return ss
}

// HasDelay reports whether any unfinished item with a due date is past it.
func HasDelay(items []domain.WorkItem, today time.Time, loc *time.Location) bool {
	today = calendar.StartOfDay(today)
	for _, it := range items {
		due, ok := calendar.ParseDate(it.DueDate, loc)
		if !ok || it.Finished() {
			continue
		}
		if today.After(due) {
			return true
		}
	}
	return false
}

// ProjectedDelay extrapolates the observed burn rate over the whole
// initiative scope and returns the slip in business days. Without observed
// progress there is no projection and the delay is zero.
func ProjectedDelay(ini domain.Initiative, today time.Time, loc *time.Location) int {
	if len(ini.Stories) == 0 {
		return 0
	}
	today = calendar.StartOfDay(today)

	start, ok := calendar.ParseDate(ini.StartDate, loc)
	if !ok {
		start = earliestStart(ini.Stories, today, loc)
	}
	due, ok := calendar.ParseDate(ini.DueDate, loc)
	if !ok {
		due = latestDue(ini.Stories, today, loc)
	}

	var original, completed float64
	for _, it := range ini.Stories {
		original += it.OriginalEstimate
		completed += it.CompletedWork
	}

	totalDays := ini.SprintDays
	if totalDays <= 0 {
		totalDays = max(1, calendar.BusinessDaysBetween(start, due)-1)
	}
	daysElapsed := max(0, calendar.BusinessDaysBetween(start, today)-1)

	var burnRate float64
	if daysElapsed > 0 {
		burnRate = completed / float64(daysElapsed)
	}
	projectedDays := 0
	if burnRate > 0 {
		projectedDays = int(math.Ceil(math.Max(0, original-completed) / burnRate))
	}
	return max(0, daysElapsed+projectedDays-totalDays)
}

func earliestStart(items []domain.WorkItem, fallback time.Time, loc *time.Location) time.Time {
	var out time.Time
	for _, it := range items {
		if t, ok := calendar.ParseDate(it.StartDate, loc); ok && (out.IsZero() || t.Before(out)) {
			out = t
		}
	}
	if out.IsZero() {
		return fallback
	}
	return out
}

func latestDue(items []domain.WorkItem, fallback time.Time, loc *time.Location) time.Time {
	var out time.Time
	for _, it := range items {
		if t, ok := calendar.ParseDate(it.DueDate, loc); ok && t.After(out) {
			out = t
		}
	}
	if out.IsZero() {
		return fallback
	}
	return out
}

func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return tracking.Round(part/whole*100, 1)
}

func clampPercent(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
