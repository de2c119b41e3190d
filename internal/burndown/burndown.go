// Package burndown projects remaining effort day by day against an
// idealised baseline.
package burndown

import (
	"math"
	"time"

	"hutracker/internal/calendar"
	"hutracker/internal/domain"
)

// MaxPoints bounds the generated curve when a very slow burn rate pushes
// the projection years out. Scalars such as Delay are not affected.
const MaxPoints = 2600

type Status string

const (
	StatusDelay   Status = "delay"
	StatusAhead   Status = "ahead"
	StatusOnTrack Status = "on_track"
)

type Options struct {
	// SprintDays fixes the planned length; 0 derives it from item dates.
	SprintDays int
	// Baseline overrides the starting height of the ideal line.
	Baseline *float64
	Today    time.Time
	Location *time.Location
}

type Point struct {
	Index     int      `json:"index"`
	Date      string   `json:"date"`
	Baseline  *float64 `json:"baseline"`
	Projected float64  `json:"projected"`
	Worked    float64  `json:"worked"`
	Variance  *float64 `json:"variance,omitempty"`
	Status    Status   `json:"status,omitempty"`
}

type Result struct {
	StartDate          string  `json:"start_date,omitempty"`
	DueDate            string  `json:"due_date,omitempty"`
	TotalOriginal      float64 `json:"total_original"`
	TotalCompleted     float64 `json:"total_completed"`
	Remaining          float64 `json:"remaining"`
	TotalDays          int     `json:"total_days"`
	DaysElapsed        int     `json:"days_elapsed"`
	BurnRate           float64 `json:"burn_rate"`
	Velocity           float64 `json:"velocity"`
	ProjectedDays      int     `json:"projected_days"`
	ProjectedTotalDays int     `json:"projected_total_days"`
	Delay              int     `json:"delay"`
	Truncated          bool    `json:"truncated,omitempty"`
	Points             []Point `json:"points"`
	BreakingPoint      *Point  `json:"breaking_point,omitempty"`
}

// Project builds the burndown for items. With no observed progress the
// velocity falls back to the linear plan (total estimate over total days).
func Project(items []domain.WorkItem, opts Options) Result {
	res := Result{Points: []Point{}}
	if len(items) == 0 {
		return res
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Today
	if now.IsZero() {
		now = time.Now()
	}
	today := calendar.StartOfDay(now.In(loc))

	var start, due time.Time
	for i, it := range items {
		s, ok := calendar.ParseDate(it.StartDate, loc)
		if !ok {
			s = today
		}
		d, ok := calendar.ParseDate(it.DueDate, loc)
		if !ok {
			d = today
		}
		if i == 0 || s.Before(start) {
			start = s
		}
		if i == 0 || d.After(due) {
			due = d
		}
		res.TotalOriginal += it.OriginalEstimate
		res.TotalCompleted += it.CompletedWork
	}
	res.StartDate = calendar.FormatDate(start)
	res.DueDate = calendar.FormatDate(due)

	res.TotalDays = opts.SprintDays
	if res.TotalDays <= 0 {
		res.TotalDays = max(1, calendar.BusinessDaysBetween(start, due)-1)
	}
	res.DaysElapsed = max(0, calendar.BusinessDaysBetween(start, today)-1)

	if res.DaysElapsed > 0 {
		res.BurnRate = res.TotalCompleted / float64(res.DaysElapsed)
	}
	res.Velocity = res.BurnRate
	if res.Velocity <= 0 {
		res.Velocity = res.TotalOriginal / float64(res.TotalDays)
	}
	res.Remaining = math.Max(0, res.TotalOriginal-res.TotalCompleted)
	if res.Velocity > 0 {
		res.ProjectedDays = int(math.Ceil(res.Remaining / res.Velocity))
	}
	res.ProjectedTotalDays = res.DaysElapsed + res.ProjectedDays
	res.Delay = max(0, res.ProjectedTotalDays-res.TotalDays)

	maxDays := max(res.TotalDays, res.ProjectedTotalDays, res.DaysElapsed)
	if maxDays >= MaxPoints {
		maxDays = MaxPoints - 1
		res.Truncated = true
	}

	baselineTotal := res.TotalOriginal
	if opts.Baseline != nil {
		baselineTotal = *opts.Baseline
	}
	step := baselineTotal / float64(res.TotalDays)

	prev := res.TotalOriginal
	date := start
	for i := 0; i <= maxDays; i++ {
		if i > 0 {
			date = calendar.AddBusinessDays(date, 1)
		}
		projected := math.Max(res.TotalOriginal-res.Velocity*float64(i), 0)
		p := Point{
			Index:     i,
			Date:      calendar.FormatDate(date),
			Projected: projected,
			Worked:    math.Max(prev-projected, 0),
		}
		prev = projected
		if i <= res.TotalDays {
			b := baselineTotal - step*float64(i)
			v := projected - b
			p.Baseline = &b
			p.Variance = &v
			p.Status = statusOf(v)
			if res.BreakingPoint == nil && projected > b {
				bp := p
				res.BreakingPoint = &bp
			}
		}
		res.Points = append(res.Points, p)
	}
	return res
}

func statusOf(variance float64) Status {
	const eps = 1e-9
	switch {
	case variance > eps:
		return StatusDelay
	case variance < -eps:
		return StatusAhead
	default:
		return StatusOnTrack
	}
}

// ForSprint selects the items of one sprint. The empty sprint and the
// default bucket select everything.
func ForSprint(items []domain.WorkItem, sprint string) []domain.WorkItem {
	if sprint == "" || sprint == domain.DefaultInitiative {
		return items
	}
	out := make([]domain.WorkItem, 0, len(items))
	for _, it := range items {
		if it.Sprint == sprint {
			out = append(out, it)
		}
	}
	return out
}
