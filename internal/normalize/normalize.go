// Package normalize turns loosely keyed raw records (spreadsheet rows,
// storage rows, API bodies) into canonical WorkItems and applies the
// field-by-field mutation rules.
package normalize

import (
	"math"

	"hutracker/internal/domain"
)

// Record is a raw row keyed by any accepted alias.
type Record map[string]any

// Lookup returns the first non-nil value among field's aliases.
func (r Record) Lookup(f Field) (any, bool) {
	return lookup(r, itemAliases[f])
}

func lookup(r Record, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r Record) value(f Field) any {
	v, _ := r.Lookup(f)
	return v
}

// With returns a copy of r where f resolves to v, whatever alias r used.
func (r Record) With(f Field, v any) Record {
	out := make(Record, len(r)+1)
	for k, val := range r {
		out[k] = val
	}
	for _, k := range itemAliases[f] {
		delete(out, k)
	}
	out[string(f)] = v
	return out
}

// Item is the single entry point from raw records into the WorkItem model.
// Missing fields take their defaults and remaining work is derived unless a
// backing store supplied a numeric value.
func Item(r Record) domain.WorkItem {
	original := toNumber(r.value(FieldOriginalEstimate))
	completed := toNumber(r.value(FieldCompletedWork))

	w := domain.WorkItem{
		ID:               toText(r.value(FieldID)),
		InitiativeID:     toText(r.value(FieldInitiativeID)),
		Title:            toText(r.value(FieldTitle)),
		State:            toState(r.value(FieldState)),
		AssignedTo:       toText(r.value(FieldAssignedTo)),
		OriginalEstimate: original,
		CompletedWork:    completed,
		RemainingWork:    Remaining(original, completed),
		StartDate:        toDate(r.value(FieldStartDate)),
		DueDate:          toDate(r.value(FieldDueDate)),
		CompletionDate:   toDate(r.value(FieldCompletionDate)),
		Initiative:       toText(r.value(FieldInitiative)),
		Sprint:           toSprint(r.value(FieldSprint)),
		IsAdditional:     toBool(r.value(FieldIsAdditional)),
	}
	if w.Initiative == "" {
		w.Initiative = domain.DefaultInitiative
	}
	if v, ok := r.Lookup(FieldRemainingWork); ok && isNumeric(v) {
		w.RemainingWork = toNumber(v)
	}
	return w
}

// Remaining is the derived remaining work, never negative.
func Remaining(original, completed float64) float64 {
	return math.Max(0, original-completed)
}

// ToRecord renders w with the snake_case wire keys. Item(ToRecord(w))
// returns w unchanged for any normalized w.
func ToRecord(w domain.WorkItem) Record {
	r := Record{
		string(FieldTitle):            w.Title,
		string(FieldState):            string(w.State),
		string(FieldAssignedTo):       w.AssignedTo,
		string(FieldOriginalEstimate): w.OriginalEstimate,
		string(FieldCompletedWork):    w.CompletedWork,
		string(FieldRemainingWork):    w.RemainingWork,
		string(FieldStartDate):        w.StartDate,
		string(FieldDueDate):          w.DueDate,
		string(FieldCompletionDate):   w.CompletionDate,
		string(FieldInitiative):       w.Initiative,
		string(FieldSprint):           w.Sprint,
		string(FieldIsAdditional):     w.IsAdditional,
	}
	if w.ID != "" {
		r[string(FieldID)] = w.ID
	}
	if w.InitiativeID != "" {
		r[string(FieldInitiativeID)] = w.InitiativeID
	}
	return r
}

// Initiative maps an initiative record and its nested stories. Stories
// inherit the initiative's name and id when they carry none.
func Initiative(r Record) domain.Initiative {
	ini := domain.Initiative{
		ID:        toText(lookupIni(r, iniID)),
		Name:      toText(lookupIni(r, iniName)),
		StartDate: toDate(lookupIni(r, iniStartDate)),
		DueDate:   toDate(lookupIni(r, iniDueDate)),
	}
	if n := toNumber(lookupIni(r, iniSprintDays)); n > 0 {
		ini.SprintDays = int(n)
	}
	raw, _ := lookupIni(r, iniStories).([]any)
	for _, s := range raw {
		rec, ok := AsRecord(s)
		if !ok {
			continue
		}
		if _, ok := rec.Lookup(FieldInitiative); !ok && ini.Name != "" {
			rec = rec.With(FieldInitiative, ini.Name)
		}
		if _, ok := rec.Lookup(FieldInitiativeID); !ok && ini.ID != "" {
			rec = rec.With(FieldInitiativeID, ini.ID)
		}
		ini.Stories = append(ini.Stories, Item(rec))
	}
	return ini
}

func lookupIni(r Record, f initiativeField) any {
	v, _ := lookup(r, initiativeAliases[f])
	return v
}

// AsRecord accepts the map shapes produced by JSON and YAML decoders.
func AsRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return Record(m), true
	case map[any]any:
		out := make(Record, len(m))
		for k, val := range m {
			out[toText(k)] = val
		}
		return out, true
	}
	return nil, false
}
