package domain

import "strconv"

type State string

const (
	StateToDo       State = "ToDo"
	StateInProgress State = "In Progress"
	StateDone       State = "Done"
)

// DefaultInitiative is the initiative name used when a record carries none.
const DefaultInitiative = "General"

// WorkItem is a tracked user story. Dates are calendar dates (YYYY-MM-DD).
type WorkItem struct {
	ID               string  `json:"id,omitempty"`
	InitiativeID     string  `json:"initiative_id,omitempty"`
	Title            string  `json:"title"`
	State            State   `json:"state" enum:"ToDo,In Progress,Done"`
	AssignedTo       string  `json:"assigned_to,omitempty"`
	OriginalEstimate float64 `json:"original_estimate"`
	CompletedWork    float64 `json:"completed_work"`
	RemainingWork    float64 `json:"remaining_work"`
	StartDate        string  `json:"start_date,omitempty"`
	DueDate          string  `json:"due_date,omitempty"`
	CompletionDate   string  `json:"completion_date,omitempty"`
	Initiative       string  `json:"initiative"`
	Sprint           string  `json:"sprint"`
	IsAdditional     bool    `json:"is_additional"`
}

// Finished reports whether logged effort covers the estimate.
func (w WorkItem) Finished() bool {
	return w.CompletedWork >= w.OriginalEstimate
}

// SprintNumber parses the sprint field. Unassigned or non-numeric sprints
// report ok=false.
func (w WorkItem) SprintNumber() (int, bool) {
	if w.Sprint == "" {
		return 0, false
	}
	n, err := strconv.Atoi(w.Sprint)
	if err != nil {
		f, ferr := strconv.ParseFloat(w.Sprint, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false
		}
		n = int(f)
	}
	return n, true
}

type Initiative struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	StartDate  string     `json:"start_date,omitempty"`
	DueDate    string     `json:"due_date,omitempty"`
	SprintDays int        `json:"sprint_days"`
	Stories    []WorkItem `json:"stories,omitempty"`
	CreatedAt  string     `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt  string     `json:"updated_at,omitempty" format:"date-time"`
}

type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Type         string `json:"type"`
	InitiativeID string `json:"initiative_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id,omitempty"`
	ActorID      string `json:"actor_id"`
	Payload      string `json:"payload_json"`
}
