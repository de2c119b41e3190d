package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hutracker/internal/calendar"
	"hutracker/internal/domain"
	"hutracker/internal/events"
	"hutracker/internal/normalize"
	"hutracker/internal/rollup"
	"hutracker/internal/validate"
)

// AddItem normalizes rec into a new story of the initiative. New stories
// start with no completed work and are additional scope when due after the
// initiative.
func (e Engine) AddItem(ctx context.Context, initiativeRef string, rec normalize.Record, actorID string) (domain.WorkItem, error) {
	ini, err := e.GetInitiative(ctx, initiativeRef)
	if err != nil {
		return domain.WorkItem{}, err
	}
	rec = rec.With(normalize.FieldInitiative, ini.Name).With(normalize.FieldInitiativeID, ini.ID)
	if res := validate.Record(rec.With(normalize.FieldCompletedWork, 0)); !res.Valid() {
		return domain.WorkItem{}, invalid(res.Errors...)
	}
	coll := normalize.Collection{Items: ini.Stories, Selected: ini.Name}
	w := validate.Sanitize(coll.Add(rec))
	w.ID = uuid.NewString()
	w.IsAdditional = normalize.IsAdditional(w.DueDate, ini.DueDate)
	if err := e.checkSchedule(ini, w, true); err != nil {
		return domain.WorkItem{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()
	now := e.stamp()
	if err := e.Repo.InsertItem(ctx, tx, w, now); err != nil {
		return domain.WorkItem{}, fmt.Errorf("insert item: %w", err)
	}
	evt, err := e.Events.Append(ctx, tx, events.ItemCreated, ini.ID, events.KindItem, w.ID, actor(actorID), events.Payload{
		"title": w.Title, "sprint": w.Sprint, "original_estimate": w.OriginalEstimate, "is_additional": w.IsAdditional,
	})
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	log.Debug().Str("initiative", ini.Name).Str("item", w.ID).Msg("item added")
	e.publish(ctx, evt)
	return w, nil
}

// EditItem applies a single field edit. Estimate edits re-derive remaining
// work; due date edits re-derive the additional-scope flag.
func (e Engine) EditItem(ctx context.Context, id, field string, value any, actorID string) (domain.WorkItem, error) {
	w, err := e.Repo.GetItem(ctx, id)
	if err != nil {
		return domain.WorkItem{}, err
	}
	ini, err := e.Repo.GetInitiative(ctx, w.InitiativeID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	f, ok := normalize.ResolveField(field)
	switch {
	case !ok:
		return domain.WorkItem{}, invalid(fmt.Sprintf("unknown field %q", field))
	case f == normalize.FieldID, f == normalize.FieldInitiativeID, f == normalize.FieldInitiative, f == normalize.FieldRemainingWork:
		return domain.WorkItem{}, invalid(fmt.Sprintf("field %q cannot be edited", field))
	}
	if f == normalize.FieldOriginalEstimate || f == normalize.FieldCompletedWork {
		if _, ok := normalize.ParseNumber(value); !ok {
			return domain.WorkItem{}, invalid(fmt.Sprintf("%s must be a number", field))
		}
	}

	coll := normalize.Collection{Items: []domain.WorkItem{w}, Selected: ini.Name}
	if f == normalize.FieldDueDate {
		coll.SetDueDate(0, value, ini.DueDate)
	} else {
		coll.Edit(0, string(f), value)
	}
	edited := validate.Sanitize(coll.Items[0])
	if res := validate.Item(edited); !res.Valid() {
		return domain.WorkItem{}, invalid(res.Errors...)
	}
	if err := e.checkSchedule(ini, edited, false); err != nil {
		return domain.WorkItem{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateItem(ctx, tx, edited, e.stamp()); err != nil {
		return domain.WorkItem{}, err
	}
	evt, err := e.Events.Append(ctx, tx, events.ItemUpdated, ini.ID, events.KindItem, edited.ID, actor(actorID), events.Payload{
		"field": string(f), "value": normalize.ToRecord(edited)[string(f)],
	})
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	e.publish(ctx, evt)
	return edited, nil
}

func (e Engine) RemoveItem(ctx context.Context, id, actorID string) error {
	w, err := e.Repo.GetItem(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteItem(ctx, tx, id); err != nil {
		return err
	}
	evt, err := e.Events.Append(ctx, tx, events.ItemDeleted, w.InitiativeID, events.KindItem, id, actor(actorID), events.Payload{"title": w.Title})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish(ctx, evt)
	return nil
}

// ImportError carries the per-row outcome of a rejected import.
type ImportError struct {
	Result validate.BulkResult
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s: %v", ErrValidation, e.Result.Errors)
}

func (e *ImportError) Unwrap() error { return ErrValidation }

// ImportItems replaces an initiative's stories with rows. Rows without an
// initiative take the target's name; all rows end up in the target. The
// import is all or nothing: any invalid row rejects the batch.
func (e Engine) ImportItems(ctx context.Context, initiativeRef string, rows []normalize.Record, actorID string) ([]domain.WorkItem, error) {
	ini, err := e.Repo.ResolveInitiative(ctx, initiativeRef)
	if err != nil {
		return nil, err
	}
	var filled []normalize.Record
	if rows != nil {
		filled = make([]normalize.Record, len(rows))
		for i, r := range rows {
			if _, ok := r.Lookup(normalize.FieldInitiative); !ok {
				r = r.With(normalize.FieldInitiative, ini.Name)
			}
			filled[i] = r
		}
	}
	bulk := validate.Bulk(filled)
	if !bulk.OK() {
		return nil, &ImportError{Result: bulk}
	}

	items := make([]domain.WorkItem, len(bulk.Valid))
	for i, w := range bulk.Valid {
		w.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(ini.ID+"/"+strconv.Itoa(i)+"/"+w.Title)).String()
		w.InitiativeID = ini.ID
		w.Initiative = ini.Name
		if _, ok := filled[i].Lookup(normalize.FieldIsAdditional); !ok {
			w.IsAdditional = normalize.IsAdditional(w.DueDate, ini.DueDate)
		}
		items[i] = w
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceItems(ctx, tx, ini.ID, items, e.stamp()); err != nil {
		return nil, fmt.Errorf("replace items: %w", err)
	}
	evt, err := e.Events.Append(ctx, tx, events.ItemsImported, ini.ID, events.KindInitiative, ini.ID, actor(actorID), events.Payload{"count": len(items)})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	log.Info().Str("initiative", ini.Name).Int("items", len(items)).Msg("items imported")
	e.publish(ctx, evt)
	return items, nil
}

// checkSchedule enforces the initiative's sprint range and date window.
// New items may not start before today.
func (e Engine) checkSchedule(ini domain.Initiative, w domain.WorkItem, isNew bool) error {
	var msgs []string
	if n, ok := w.SprintNumber(); ok {
		total := rollup.Summarize(ini, e.today(time.Time{}), e.loc()).TotalSprints
		if total > 0 && (n < 1 || n > total) {
			msgs = append(msgs, fmt.Sprintf("Sprint must be between 1 and %d", total))
		}
	}
	start, ok := calendar.ParseDate(w.StartDate, e.loc())
	if ok {
		if iniStart, ok := calendar.ParseDate(ini.StartDate, e.loc()); ok && start.Before(iniStart) {
			msgs = append(msgs, "Start Date must not be before the initiative start date")
		}
		if iniDue, ok := calendar.ParseDate(ini.DueDate, e.loc()); ok && start.After(iniDue) {
			msgs = append(msgs, "Start Date must not be after the initiative due date")
		}
		if isNew && start.Before(calendar.StartOfDay(e.today(time.Time{}))) {
			msgs = append(msgs, "Start Date must not be in the past")
		}
	}
	if len(msgs) > 0 {
		return invalid(msgs...)
	}
	return nil
}
