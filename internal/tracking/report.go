package tracking

import (
	"time"

	"hutracker/internal/calendar"
	"hutracker/internal/domain"
)

type Deviation string

const (
	DeviationNone      Deviation = "-"
	DeviationCompleted Deviation = "Completed"
	DeviationDelayed   Deviation = "Delayed"
	DeviationAhead     Deviation = "Ahead"
)

// DeviationOf classifies item against its due date as seen from today.
func DeviationOf(item domain.WorkItem, today time.Time, loc *time.Location) Deviation {
	due, ok := calendar.ParseDate(item.DueDate, loc)
	if !ok {
		return DeviationNone
	}
	if item.Finished() {
		return DeviationCompleted
	}
	if !calendar.StartOfDay(today).Before(due) {
		return DeviationDelayed
	}
	return DeviationAhead
}

// ItemReport is one row of the per-item schedule table.
type ItemReport struct {
	ID             string       `json:"id,omitempty"`
	Title          string       `json:"title"`
	State          domain.State `json:"state"`
	AssignedTo     string       `json:"assigned_to,omitempty"`
	Initiative     string       `json:"initiative"`
	Sprint         string       `json:"sprint"`
	StartDate      string       `json:"start_date,omitempty"`
	DueDate        string       `json:"due_date,omitempty"`
	EffectiveToday string       `json:"effective_today"`
	OriginalHours  float64      `json:"original_hours"`
	CompletedHours float64      `json:"completed_hours"`
	RemainingHours float64      `json:"remaining_hours"`
	IsAdditional   bool         `json:"is_additional"`
	Deviation      Deviation    `json:"deviation"`
	Elapsed
}

// Report runs time accounting for item. Missing start or due dates default
// to the effective today.
func Report(item domain.WorkItem, now time.Time, loc *time.Location) ItemReport {
	if loc == nil {
		loc = time.Local
	}
	today := EffectiveToday(item, now, loc)
	start, ok := calendar.ParseDate(item.StartDate, loc)
	if !ok {
		start = today
	}
	due, ok := calendar.ParseDate(item.DueDate, loc)
	if !ok {
		due = today
	}
	return ItemReport{
		ID:             item.ID,
		Title:          item.Title,
		State:          item.State,
		AssignedTo:     item.AssignedTo,
		Initiative:     item.Initiative,
		Sprint:         item.Sprint,
		StartDate:      item.StartDate,
		DueDate:        item.DueDate,
		EffectiveToday: calendar.FormatDate(today),
		OriginalHours:  item.OriginalEstimate,
		CompletedHours: item.CompletedWork,
		RemainingHours: item.RemainingWork,
		IsAdditional:   item.IsAdditional,
		Deviation:      DeviationOf(item, today, loc),
		Elapsed:        CalculateElapsedAndDelay(start, due, today, item.OriginalEstimate, item.CompletedWork),
	}
}

func Reports(items []domain.WorkItem, now time.Time, loc *time.Location) []ItemReport {
	out := make([]ItemReport, 0, len(items))
	for _, it := range items {
		out = append(out, Report(it, now, loc))
	}
	return out
}
