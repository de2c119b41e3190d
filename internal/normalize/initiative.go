package normalize

import (
	"math"

	"hutracker/internal/domain"
)

func resolveInitiativeField(name string) (initiativeField, bool) {
	key := fold(name)
	for f, keys := range initiativeAliases {
		if fold(string(f)) == key {
			return f, true
		}
		for _, k := range keys {
			if fold(k) == key {
				return f, true
			}
		}
	}
	return "", false
}

// EditInitiative sets one top-level field of ini. Sprint days are coerced
// to a whole number; stories and ids are not editable this way.
func EditInitiative(ini *domain.Initiative, field string, value any) bool {
	f, _ := resolveInitiativeField(field)
	switch f {
	case iniName:
		ini.Name = toText(value)
	case iniStartDate:
		ini.StartDate = toDate(value)
	case iniDueDate:
		ini.DueDate = toDate(value)
	case iniSprintDays:
		ini.SprintDays = int(math.Max(0, math.Trunc(toNumber(value))))
	default:
		return false
	}
	return true
}
