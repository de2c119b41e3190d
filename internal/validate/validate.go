// Package validate checks stories and initiatives at the input boundary
// and sanitises free text.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"hutracker/internal/calendar"
	"hutracker/internal/domain"
	"hutracker/internal/normalize"
)

var ErrInvalid = errors.New("validation failed")

// Error carries every rule violation found.
type Error struct {
	Errors []string
}

func (e *Error) Error() string {
	return ErrInvalid.Error() + ": " + strings.Join(e.Errors, "; ")
}

func (e *Error) Unwrap() error { return ErrInvalid }

type Result struct {
	Errors []string `json:"errors,omitempty"`
}

func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Err returns nil for a valid result and an *Error otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &Error{Errors: r.Errors}
}

func (r *Result) add(msg string) { r.Errors = append(r.Errors, msg) }

var (
	emailRe     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	scriptRe    = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	jsSchemeRe  = regexp.MustCompile(`(?i)javascript:`)
	eventAttrRe = regexp.MustCompile(`(?i)on\w+\s*=`)
	validStates = map[domain.State]bool{domain.StateToDo: true, domain.StateInProgress: true, domain.StateDone: true}
)

func IsValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// SanitizeText strips script blocks, javascript: schemes and inline event
// handler attributes, then trims.
func SanitizeText(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = jsSchemeRe.ReplaceAllString(s, "")
	s = eventAttrRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Item checks a normalized story.
func Item(w domain.WorkItem) Result {
	var r Result
	if strings.TrimSpace(w.Title) == "" {
		r.add("Title is required")
	}
	if !validStates[w.State] {
		r.add("State must be one of: ToDo, In Progress, Done")
	}
	if w.OriginalEstimate < 0 {
		r.add("Original Estimate must be a positive number")
	}
	if w.CompletedWork < 0 {
		r.add("Completed Work must be a positive number")
	}
	if w.CompletedWork > w.OriginalEstimate {
		r.add("Completed Work cannot exceed Original Estimate")
	}
	start, hasStart := checkDate(&r, w.StartDate, "Start Date must be a valid date")
	due, hasDue := checkDate(&r, w.DueDate, "Due Date must be a valid date")
	if hasStart && hasDue && due.Before(start) {
		r.add("Due Date must not be before Start Date")
	}
	if w.CompletionDate != "" {
		checkDate(&r, w.CompletionDate, "Completion Date must be a valid date")
	}
	if w.AssignedTo != "" && !IsValidEmail(w.AssignedTo) {
		r.add("Assigned To must be a valid email address")
	}
	if w.Sprint != "" {
		if n, ok := w.SprintNumber(); !ok || n < 1 {
			r.add("Sprint must be a positive whole number")
		}
	}
	return r
}

// Record checks a raw row before normalization, catching non-numeric
// estimates that normalization would silently coerce to zero.
func Record(rec normalize.Record) Result {
	var r Result
	for _, f := range []struct {
		field normalize.Field
		msg   string
	}{
		{normalize.FieldOriginalEstimate, "Original Estimate must be a positive number"},
		{normalize.FieldCompletedWork, "Completed Work must be a positive number"},
	} {
		if v, ok := rec.Lookup(f.field); ok {
			if _, ok := normalize.ParseNumber(v); !ok {
				r.add(f.msg)
			}
		}
	}
	if v, ok := rec.Lookup(normalize.FieldState); ok {
		if s, isText := v.(string); isText && strings.TrimSpace(s) != "" {
			if _, ok := normalize.ParseState(s); !ok {
				r.add("State must be one of: ToDo, In Progress, Done")
			}
		}
	}
	for _, msg := range Item(normalize.Item(rec)).Errors {
		if !slices.Contains(r.Errors, msg) {
			r.add(msg)
		}
	}
	return r
}

// Sanitize returns w with its free-text fields cleaned.
func Sanitize(w domain.WorkItem) domain.WorkItem {
	w.Title = SanitizeText(w.Title)
	w.AssignedTo = SanitizeText(w.AssignedTo)
	w.Initiative = SanitizeText(w.Initiative)
	return w
}

// Initiative checks an initiative's own fields; its stories are not
// inspected.
func Initiative(ini domain.Initiative) Result {
	var r Result
	if strings.TrimSpace(ini.Name) == "" {
		r.add("Initiative name is required")
	}
	start, hasStart := checkDate(&r, ini.StartDate, "Start date must be valid")
	due, hasDue := checkDate(&r, ini.DueDate, "Due date must be valid")
	if hasStart && hasDue && due.Before(start) {
		r.add("Due date must not be before start date")
	}
	if ini.SprintDays < 0 {
		r.add("Sprint days must be a positive number")
	}
	return r
}

type InvalidRow struct {
	Index  int              `json:"index"`
	Data   normalize.Record `json:"data"`
	Errors []string         `json:"errors"`
}

type BulkResult struct {
	Errors  []string          `json:"errors,omitempty"`
	Valid   []domain.WorkItem `json:"valid"`
	Invalid []InvalidRow      `json:"invalid"`
}

func (b BulkResult) OK() bool { return len(b.Invalid) == 0 && len(b.Errors) == 0 }

// Bulk validates rows one by one, normalizing and sanitising the ones
// that pass.
func Bulk(rows []normalize.Record) BulkResult {
	out := BulkResult{Valid: []domain.WorkItem{}, Invalid: []InvalidRow{}}
	if rows == nil {
		out.Errors = []string{"Input must be an array"}
		return out
	}
	for i, rec := range rows {
		res := Record(rec)
		if !res.Valid() {
			out.Invalid = append(out.Invalid, InvalidRow{Index: i, Data: rec, Errors: res.Errors})
			continue
		}
		out.Valid = append(out.Valid, Sanitize(normalize.Item(rec)))
	}
	if n := len(out.Invalid); n > 0 {
		out.Errors = []string{fmt.Sprintf("%d items failed validation", n)}
	}
	return out
}

func checkDate(r *Result, s, msg string) (time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, false
	}
	t, ok := calendar.ParseDate(s, time.UTC)
	if !ok {
		r.add(msg)
	}
	return t, ok
}
