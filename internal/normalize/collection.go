package normalize

import (
	"time"

	"hutracker/internal/calendar"
	"hutracker/internal/domain"
)

// Collection is an explicitly owned item snapshot together with the
// selected initiative. It does no locking; callers serialise access.
type Collection struct {
	Items    []domain.WorkItem
	Selected string
}

// Load replaces the items with rows and selects the first item's
// initiative. Rows without an initiative get fallback when it is set.
func (c *Collection) Load(rows []Record, fallback string) {
	c.Items = make([]domain.WorkItem, 0, len(rows))
	for _, r := range rows {
		if _, ok := r.Lookup(FieldInitiative); !ok && fallback != "" {
			r = r.With(FieldInitiative, fallback)
		}
		c.Items = append(c.Items, Item(r))
	}
	c.Selected = ""
	if len(c.Items) > 0 {
		c.Selected = c.Items[0].Initiative
	}
}

// Add appends a new item. New items never start with completed work.
func (c *Collection) Add(r Record) domain.WorkItem {
	w := Item(r.With(FieldCompletedWork, 0).With(FieldRemainingWork, nil))
	c.Items = append(c.Items, w)
	c.Selected = w.Initiative
	return w
}

// Edit sets one field of the item at index. Estimate fields are coerced
// to numbers and re-derive remaining work. Text fields are stored as given
// (an unknown state included). Dates are canonicalised to YYYY-MM-DD when
// they parse and kept as text otherwise; sprint numbers become their
// decimal text and the additional flag a bool. Remaining work and ids
// cannot be edited. It reports whether the item changed.
func (c *Collection) Edit(index int, field string, value any) bool {
	f, ok := ResolveField(field)
	if !ok || index < 0 || index >= len(c.Items) {
		return false
	}
	it := &c.Items[index]
	switch f {
	case FieldOriginalEstimate:
		it.OriginalEstimate = toNumber(value)
		it.RemainingWork = Remaining(it.OriginalEstimate, it.CompletedWork)
	case FieldCompletedWork:
		it.CompletedWork = toNumber(value)
		it.RemainingWork = Remaining(it.OriginalEstimate, it.CompletedWork)
	case FieldTitle:
		it.Title = toText(value)
	case FieldState:
		s := toText(value)
		if st, ok := ParseState(s); ok {
			it.State = st
		} else {
			it.State = domain.State(s)
		}
	case FieldAssignedTo:
		it.AssignedTo = toText(value)
	case FieldStartDate:
		it.StartDate = toDate(value)
	case FieldDueDate:
		it.DueDate = toDate(value)
	case FieldCompletionDate:
		it.CompletionDate = toDate(value)
	case FieldInitiative:
		it.Initiative = toText(value)
	case FieldInitiativeID:
		it.InitiativeID = toText(value)
	case FieldSprint:
		it.Sprint = toSprint(value)
	case FieldIsAdditional:
		it.IsAdditional = toBool(value)
	default:
		return false
	}
	return true
}

// SetDueDate edits the due date and re-derives the additional-scope flag
// against the initiative's due date.
func (c *Collection) SetDueDate(index int, value any, initiativeDue string) bool {
	if !c.Edit(index, string(FieldDueDate), value) {
		return false
	}
	it := &c.Items[index]
	it.IsAdditional = IsAdditional(it.DueDate, initiativeDue)
	return true
}

func (c *Collection) Remove(index int) bool {
	if index < 0 || index >= len(c.Items) {
		return false
	}
	c.Items = append(c.Items[:index], c.Items[index+1:]...)
	return true
}

func (c *Collection) IndexOf(id string) int {
	for i, it := range c.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// IsAdditional reports whether due falls after the initiative due date.
// Either date missing means the item is within plan.
func IsAdditional(due, initiativeDue string) bool {
	d, ok := calendar.ParseDate(due, time.UTC)
	if !ok {
		return false
	}
	limit, ok := calendar.ParseDate(initiativeDue, time.UTC)
	if !ok {
		return false
	}
	return d.After(limit)
}
