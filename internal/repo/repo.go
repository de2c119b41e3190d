package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"hutracker/internal/domain"
	"hutracker/internal/normalize"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const initiativeColumns = `id,name,COALESCE(start_date,''),COALESCE(due_date,''),sprint_days,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInitiative(s scanner) (domain.Initiative, error) {
	var ini domain.Initiative
	err := s.Scan(&ini.ID, &ini.Name, &ini.StartDate, &ini.DueDate, &ini.SprintDays, &ini.CreatedAt, &ini.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ini, ErrNotFound
	}
	return ini, err
}

func (r Repo) InsertInitiative(ctx context.Context, tx *sql.Tx, ini domain.Initiative) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO initiatives(id,name,start_date,due_date,sprint_days,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		ini.ID, ini.Name, nullable(ini.StartDate), nullable(ini.DueDate), ini.SprintDays, ini.CreatedAt, ini.UpdatedAt)
	return err
}

func (r Repo) UpdateInitiative(ctx context.Context, tx *sql.Tx, ini domain.Initiative) error {
	res, err := tx.ExecContext(ctx, `UPDATE initiatives SET name=?,start_date=?,due_date=?,sprint_days=?,updated_at=? WHERE id=?`,
		ini.Name, nullable(ini.StartDate), nullable(ini.DueDate), ini.SprintDays, ini.UpdatedAt, ini.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInitiative removes the initiative; its items go with it.
func (r Repo) DeleteInitiative(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM initiatives WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetInitiative loads an initiative without its stories.
func (r Repo) GetInitiative(ctx context.Context, id string) (domain.Initiative, error) {
	return scanInitiative(r.DB.QueryRowContext(ctx, `SELECT `+initiativeColumns+` FROM initiatives WHERE id=?`, id))
}

func (r Repo) GetInitiativeByName(ctx context.Context, name string) (domain.Initiative, error) {
	return scanInitiative(r.DB.QueryRowContext(ctx, `SELECT `+initiativeColumns+` FROM initiatives WHERE name=?`, name))
}

// ResolveInitiative accepts an id or a name.
func (r Repo) ResolveInitiative(ctx context.Context, ref string) (domain.Initiative, error) {
	ini, err := r.GetInitiative(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return r.GetInitiativeByName(ctx, ref)
	}
	return ini, err
}

// SingleInitiative returns the only initiative, or an error when the
// workspace holds none or several.
func (r Repo) SingleInitiative(ctx context.Context) (domain.Initiative, error) {
	list, err := r.ListInitiatives(ctx)
	if err != nil {
		return domain.Initiative{}, err
	}
	if len(list) == 0 {
		return domain.Initiative{}, ErrNotFound
	}
	if len(list) > 1 {
		return domain.Initiative{}, fmt.Errorf("multiple initiatives exist; specify --initiative")
	}
	return list[0], nil
}

func (r Repo) ListInitiatives(ctx context.Context) ([]domain.Initiative, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+initiativeColumns+` FROM initiatives ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Initiative
	for rows.Next() {
		ini, err := scanInitiative(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ini)
	}
	return res, rows.Err()
}

const itemColumns = `w.id,w.initiative_id,i.name,w.title,w.state,COALESCE(w.assigned_to,''),w.original_estimate,w.completed_work,w.remaining_work,COALESCE(w.start_date,''),COALESCE(w.due_date,''),COALESCE(w.completion_date,''),w.sprint,w.is_additional`

const itemFrom = ` FROM work_items w JOIN initiatives i ON i.id = w.initiative_id`

// scanItem reads one row and routes it through normalize.Item so storage
// rows obey the same coercion as every other source.
func scanItem(s scanner) (domain.WorkItem, error) {
	var (
		id, iniID, iniName, title, state, assigned string
		original, completed                         float64
		remaining                                   sql.NullFloat64
		start, due, completion                      string
		sprint                                      sql.NullInt64
		additional                                  bool
	)
	err := s.Scan(&id, &iniID, &iniName, &title, &state, &assigned, &original, &completed, &remaining, &start, &due, &completion, &sprint, &additional)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkItem{}, ErrNotFound
	}
	if err != nil {
		return domain.WorkItem{}, err
	}
	rec := normalize.Record{
		string(normalize.FieldID):               id,
		string(normalize.FieldInitiativeID):     iniID,
		string(normalize.FieldInitiative):       iniName,
		string(normalize.FieldTitle):            title,
		string(normalize.FieldState):            state,
		string(normalize.FieldAssignedTo):       assigned,
		string(normalize.FieldOriginalEstimate): original,
		string(normalize.FieldCompletedWork):    completed,
		string(normalize.FieldStartDate):        start,
		string(normalize.FieldDueDate):          due,
		string(normalize.FieldCompletionDate):   completion,
		string(normalize.FieldIsAdditional):     additional,
	}
	if remaining.Valid {
		rec[string(normalize.FieldRemainingWork)] = remaining.Float64
	}
	if sprint.Valid {
		rec[string(normalize.FieldSprint)] = sprint.Int64
	}
	return normalize.Item(rec), nil
}

func (r Repo) GetItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return scanItem(r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+itemFrom+` WHERE w.id=?`, id))
}

// ListItems returns an initiative's items in insertion order. An empty
// initiativeID lists every item.
func (r Repo) ListItems(ctx context.Context, initiativeID string) ([]domain.WorkItem, error) {
	return listItems(ctx, r.DB, initiativeID)
}

func (r Repo) ListItemsTx(ctx context.Context, tx *sql.Tx, initiativeID string) ([]domain.WorkItem, error) {
	return listItems(ctx, tx, initiativeID)
}

func listItems(ctx context.Context, q querier, initiativeID string) ([]domain.WorkItem, error) {
	query := `SELECT ` + itemColumns + itemFrom
	var args []any
	if initiativeID != "" {
		query += ` WHERE w.initiative_id=?`
		args = append(args, initiativeID)
	}
	query += ` ORDER BY i.created_at ASC, w.initiative_id, w.position ASC`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.WorkItem{}
	for rows.Next() {
		w, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// InsertItem appends the item after the initiative's last position.
func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem, now string) error {
	var pos int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position),0)+1 FROM work_items WHERE initiative_id=?`, w.InitiativeID).Scan(&pos); err != nil {
		return err
	}
	return insertItem(ctx, tx, w, pos, now)
}

func insertItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem, pos int, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_items(id,initiative_id,position,title,state,assigned_to,original_estimate,completed_work,remaining_work,start_date,due_date,completion_date,sprint,is_additional,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.InitiativeID, pos, w.Title, string(w.State), nullable(w.AssignedTo), w.OriginalEstimate, w.CompletedWork, w.RemainingWork,
		nullable(w.StartDate), nullable(w.DueDate), nullable(w.CompletionDate), sprintValue(w), w.IsAdditional, now, now)
	return err
}

func (r Repo) UpdateItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_items SET initiative_id=?,title=?,state=?,assigned_to=?,original_estimate=?,completed_work=?,remaining_work=?,start_date=?,due_date=?,completion_date=?,sprint=?,is_additional=?,updated_at=? WHERE id=?`,
		w.InitiativeID, w.Title, string(w.State), nullable(w.AssignedTo), w.OriginalEstimate, w.CompletedWork, w.RemainingWork,
		nullable(w.StartDate), nullable(w.DueDate), nullable(w.CompletionDate), sprintValue(w), w.IsAdditional, now, w.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceItems swaps an initiative's items for items, keeping their order.
func (r Repo) ReplaceItems(ctx context.Context, tx *sql.Tx, initiativeID string, items []domain.WorkItem, now string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE initiative_id=?`, initiativeID); err != nil {
		return err
	}
	for i, w := range items {
		w.InitiativeID = initiativeID
		if err := insertItem(ctx, tx, w, i+1, now); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

const eventColumns = `id,ts,type,COALESCE(initiative_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

// LatestEvents returns the newest events first, filtered by any non-empty
// argument.
func (r Repo) LatestEvents(ctx context.Context, limit int, initiativeID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if initiativeID != "" {
		clauses = append(clauses, "initiative_id=?")
		args = append(args, initiativeID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	return r.queryEvents(ctx, query, append(args, limit)...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, eventColumns)
	return r.queryEvents(ctx, query, cursor, limit)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.InitiativeID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// WebhookCursor returns the last delivered event id for url.
func (r Repo) WebhookCursor(ctx context.Context, url string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT last_event_id FROM webhook_cursors WHERE url=?`, url).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (r Repo) SetWebhookCursor(ctx context.Context, url string, id int64, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO webhook_cursors(url,last_event_id,updated_at) VALUES (?,?,?)
ON CONFLICT(url) DO UPDATE SET last_event_id=excluded.last_event_id, updated_at=excluded.updated_at`, url, id, now)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// sprintValue stores numeric sprints as integers; unassigned is NULL.
func sprintValue(w domain.WorkItem) any {
	if n, ok := w.SprintNumber(); ok {
		return n
	}
	return nil
}
