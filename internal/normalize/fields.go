package normalize

import "strings"

// Field is a logical WorkItem attribute, named by its snake_case wire key.
type Field string

const (
	FieldID               Field = "id"
	FieldInitiativeID     Field = "initiative_id"
	FieldTitle            Field = "title"
	FieldState            Field = "state"
	FieldAssignedTo       Field = "assigned_to"
	FieldOriginalEstimate Field = "original_estimate"
	FieldCompletedWork    Field = "completed_work"
	FieldRemainingWork    Field = "remaining_work"
	FieldStartDate        Field = "start_date"
	FieldDueDate          Field = "due_date"
	FieldCompletionDate   Field = "completion_date"
	FieldInitiative       Field = "initiative"
	FieldSprint           Field = "sprint"
	FieldIsAdditional     Field = "is_additional"
)

// itemAliases lists, per logical field, the source keys accepted in raw
// records in lookup order. Spreadsheet labels come first, then camelCase,
// then the snake_case storage keys.
var itemAliases = map[Field][]string{
	FieldID:               {"id", "ID"},
	FieldInitiativeID:     {"initiativeId", "initiative_id", "InitiativeId"},
	FieldTitle:            {"Title", "title"},
	FieldState:            {"State", "state"},
	FieldAssignedTo:       {"Assigned To", "assignedTo", "assigned_to"},
	FieldOriginalEstimate: {"Original Estimate", "originalEstimate", "original_estimate"},
	FieldCompletedWork:    {"Completed Work", "completedWork", "completed_work"},
	// Only backing stores send remaining work; spreadsheet values are ignored.
	FieldRemainingWork:  {"remaining_work"},
	FieldStartDate:      {"Start Date", "startDate", "start_date"},
	FieldDueDate:        {"Due Date", "dueDate", "due_date"},
	FieldCompletionDate: {"Completion Date", "completionDate", "completion_date"},
	FieldInitiative:     {"Initiative", "initiative"},
	FieldSprint:         {"Sprint", "sprint"},
	FieldIsAdditional:   {"isAdditional", "is_additional"},
}

type initiativeField string

const (
	iniID         initiativeField = "id"
	iniName       initiativeField = "name"
	iniStartDate  initiativeField = "start_date"
	iniDueDate    initiativeField = "due_date"
	iniSprintDays initiativeField = "sprint_days"
	iniStories    initiativeField = "stories"
)

var initiativeAliases = map[initiativeField][]string{
	iniID:         {"id", "ID"},
	iniName:       {"name", "Name", "Initiative"},
	iniStartDate:  {"startDate", "start_date", "Start Date"},
	iniDueDate:    {"dueDate", "due_date", "Due Date"},
	iniSprintDays: {"sprintDays", "sprint_days", "Sprint Days"},
	iniStories:    {"stories", "hus", "items"},
}

var foldedFields map[string]Field

func init() {
	foldedFields = map[string]Field{}
	for f, keys := range itemAliases {
		foldedFields[fold(string(f))] = f
		for _, k := range keys {
			foldedFields[fold(k)] = f
		}
	}
	// Edits may name remaining work by its label; Collection.Edit rejects it.
	foldedFields[fold("Remaining Work")] = FieldRemainingWork
}

// ResolveField maps any accepted spelling of a field name (label,
// camelCase, snake_case, kebab-case, any letter case) to its Field.
func ResolveField(name string) (Field, bool) {
	f, ok := foldedFields[fold(name)]
	return f, ok
}

func fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
