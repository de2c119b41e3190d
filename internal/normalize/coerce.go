package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"hutracker/internal/calendar"
	"hutracker/internal/domain"
)

// ParseNumber converts numbers and numeric text. Blank text counts as 0;
// anything else non-numeric, NaN and infinities report ok=false.
func ParseNumber(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
		if v == "" {
			return 0, true
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// isNumeric is true only for values that already are numbers.
func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		_, ok := ParseNumber(v)
		return ok
	}
	return false
}

func toNumber(v any) float64 {
	f, _ := ParseNumber(v)
	return f
}

func toText(v any) string {
	if t, ok := v.(time.Time); ok {
		return calendar.FormatDate(t)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// toDate canonicalises parseable dates to YYYY-MM-DD and keeps anything
// else as text, so bad input degrades instead of disappearing.
func toDate(v any) string {
	s := strings.TrimSpace(toText(v))
	if t, ok := calendar.ParseDate(s, time.UTC); ok {
		return calendar.FormatDate(t)
	}
	return s
}

func toSprint(v any) string {
	if isNumeric(v) {
		return cast.ToString(toNumber(v))
	}
	return strings.TrimSpace(toText(v))
}

// toBool accepts "yes" on top of the usual boolean spellings.
func toBool(v any) bool {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, "yes") {
			return true
		}
		v = s
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false
	}
	return b
}

// ParseState maps the accepted spellings of a state onto the enum.
func ParseState(s string) (domain.State, bool) {
	switch fold(s) {
	case "todo", "new", "open":
		return domain.StateToDo, true
	case "inprogress", "doing", "active":
		return domain.StateInProgress, true
	case "done", "closed", "completed":
		return domain.StateDone, true
	}
	return "", false
}

func toState(v any) domain.State {
	if st, ok := ParseState(toText(v)); ok {
		return st
	}
	return domain.StateToDo
}
