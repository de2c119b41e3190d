// Package tracking computes per-item elapsed time, capacity and delay.
package tracking

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"hutracker/internal/calendar"
	"hutracker/internal/domain"
)

// WorkHoursPerDay is the effective capacity of one business day.
const WorkHoursPerDay = 9

type Elapsed struct {
	ElapsedDays           int     `json:"elapsed_days"`
	ElapsedEffectiveHours float64 `json:"elapsed_effective_hours"`
	DelayHours            float64 `json:"delay_hours"`
	DelayDays             float64 `json:"delay_days"`
	CapacityHoursUntilDue float64 `json:"capacity_hours_until_due"`
	CapacityDaysUntilDue  int     `json:"capacity_days_until_due"`
}

// CalculateElapsedAndDelay is pure: the same five inputs always produce the
// same result. The start day itself contributes no capacity, so both elapsed
// and until-due counts subtract one from the inclusive business-day count.
func CalculateElapsedAndDelay(start, due, today time.Time, originalEstimate, completedWork float64) Elapsed {
	start = calendar.StartOfDay(start)
	due = calendar.StartOfDay(due)
	today = calendar.StartOfDay(today)

	daysElapsed := max(0, calendar.BusinessDaysBetween(start, today)-1)
	capacityByNow := float64(daysElapsed * WorkHoursPerDay)

	daysUntilDue := max(0, calendar.BusinessDaysBetween(start, due)-1)

	var delayHours float64
	if completedWork < originalEstimate && today.After(due) {
		overdue := max(0, calendar.BusinessDaysBetween(due, today)-1)
		delayHours = float64(overdue * WorkHoursPerDay)
	}

	return Elapsed{
		ElapsedDays:           daysElapsed,
		ElapsedEffectiveHours: math.Min(capacityByNow, originalEstimate),
		DelayHours:            delayHours,
		DelayDays:             Round(delayHours/WorkHoursPerDay, 1),
		CapacityHoursUntilDue: float64(daysUntilDue * WorkHoursPerDay),
		CapacityDaysUntilDue:  daysUntilDue,
	}
}

// EffectiveToday returns the reference date for item. Finished Done items
// are frozen at their completion date, falling back to due then start date,
// so they stop accruing delay.
func EffectiveToday(item domain.WorkItem, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	if item.State == domain.StateDone && item.Finished() {
		for _, s := range []string{item.CompletionDate, item.DueDate, item.StartDate} {
			if t, ok := calendar.ParseDate(s, loc); ok {
				return t
			}
		}
	}
	return now.In(loc)
}

// Round rounds v half away from zero to places decimals. Non-finite values
// collapse to 0.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
