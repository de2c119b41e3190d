package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hutracker/internal/config"
	"hutracker/internal/domain"
	"hutracker/internal/events"
	"hutracker/internal/normalize"
	"hutracker/internal/repo"
	"hutracker/internal/validate"
)

// ErrValidation wraps every rejected input; errors.Is also matches
// validate.ErrInvalid.
var ErrValidation = validate.ErrInvalid

var ErrConflict = errors.New("conflict")

const defaultActor = "local"

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Publisher events.Publisher
	Config    *config.Config
	Now       func() time.Time
	Location  *time.Location
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		loc = time.Local
	}
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Publisher: events.NoopPublisher{},
		Config:    cfg,
		Now:       time.Now,
		Location:  loc,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

// today resolves the reference instant for derived views; a zero value
// means the engine clock.
func (e Engine) today(t time.Time) time.Time {
	if t.IsZero() {
		t = e.now()
	}
	return t.In(e.loc())
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func actor(id string) string {
	if strings.TrimSpace(id) == "" {
		return defaultActor
	}
	return id
}

func invalid(msgs ...string) error {
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

// publish hands committed events to the broker. Failures are logged, the
// write already succeeded.
func (e Engine) publish(ctx context.Context, recs ...events.Record) {
	if e.Publisher == nil {
		return
	}
	prefix := ""
	if e.Config != nil {
		prefix = e.Config.Events.SubjectPrefix
	}
	for _, rec := range recs {
		topic := events.Topic(prefix, rec.Type)
		if err := e.Publisher.Publish(ctx, topic, rec); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("publish event")
		}
	}
}

type InitiativeCreateOptions struct {
	Name       string
	StartDate  string
	DueDate    string
	SprintDays int
	ActorID    string
}

func (e Engine) CreateInitiative(ctx context.Context, opts InitiativeCreateOptions) (domain.Initiative, error) {
	ini := normalize.Initiative(normalize.Record{
		"name":       validate.SanitizeText(opts.Name),
		"start_date": opts.StartDate,
		"due_date":   opts.DueDate,
	})
	ini.SprintDays = opts.SprintDays
	if ini.SprintDays == 0 && e.Config != nil {
		ini.SprintDays = e.Config.Defaults.SprintDays
	}
	if res := validate.Initiative(ini); !res.Valid() {
		return domain.Initiative{}, invalid(res.Errors...)
	}
	if _, err := e.Repo.GetInitiativeByName(ctx, ini.Name); err == nil {
		return domain.Initiative{}, fmt.Errorf("%w: initiative %q already exists", ErrConflict, ini.Name)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Initiative{}, err
	}
	ini.ID = uuid.NewString()
	ini.CreatedAt = e.stamp()
	ini.UpdatedAt = ini.CreatedAt

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Initiative{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInitiative(ctx, tx, ini); err != nil {
		return domain.Initiative{}, fmt.Errorf("insert initiative: %w", err)
	}
	rec, err := e.Events.Append(ctx, tx, events.InitiativeCreated, ini.ID, events.KindInitiative, ini.ID, actor(opts.ActorID), events.Payload{
		"name": ini.Name, "start_date": ini.StartDate, "due_date": ini.DueDate, "sprint_days": ini.SprintDays,
	})
	if err != nil {
		return domain.Initiative{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Initiative{}, err
	}
	log.Info().Str("initiative", ini.Name).Str("id", ini.ID).Msg("initiative created")
	e.publish(ctx, rec)
	ini.Stories = []domain.WorkItem{}
	return ini, nil
}

// UpdateInitiative edits one field. Existing items keep their
// additional-scope flags when the due date moves.
func (e Engine) UpdateInitiative(ctx context.Context, ref, field string, value any, actorID string) (domain.Initiative, error) {
	ini, err := e.Repo.ResolveInitiative(ctx, ref)
	if err != nil {
		return domain.Initiative{}, err
	}
	oldName := ini.Name
	if !normalize.EditInitiative(&ini, field, value) {
		return domain.Initiative{}, invalid(fmt.Sprintf("field %q cannot be edited", field))
	}
	ini.Name = validate.SanitizeText(ini.Name)
	if res := validate.Initiative(ini); !res.Valid() {
		return domain.Initiative{}, invalid(res.Errors...)
	}
	if ini.Name != oldName {
		if _, err := e.Repo.GetInitiativeByName(ctx, ini.Name); err == nil {
			return domain.Initiative{}, fmt.Errorf("%w: initiative %q already exists", ErrConflict, ini.Name)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Initiative{}, err
		}
	}
	ini.UpdatedAt = e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Initiative{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateInitiative(ctx, tx, ini); err != nil {
		return domain.Initiative{}, err
	}
	rec, err := e.Events.Append(ctx, tx, events.InitiativeUpdated, ini.ID, events.KindInitiative, ini.ID, actor(actorID), events.Payload{"field": field, "value": value})
	if err != nil {
		return domain.Initiative{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Initiative{}, err
	}
	e.publish(ctx, rec)
	return e.GetInitiative(ctx, ini.ID)
}

func (e Engine) DeleteInitiative(ctx context.Context, ref, actorID string) error {
	ini, err := e.Repo.ResolveInitiative(ctx, ref)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteInitiative(ctx, tx, ini.ID); err != nil {
		return err
	}
	rec, err := e.Events.Append(ctx, tx, events.InitiativeDeleted, ini.ID, events.KindInitiative, ini.ID, actor(actorID), events.Payload{"name": ini.Name})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Info().Str("initiative", ini.Name).Msg("initiative deleted")
	e.publish(ctx, rec)
	return nil
}

// GetInitiative loads an initiative by id or name together with its stories.
func (e Engine) GetInitiative(ctx context.Context, ref string) (domain.Initiative, error) {
	ini, err := e.Repo.ResolveInitiative(ctx, ref)
	if err != nil {
		return domain.Initiative{}, err
	}
	items, err := e.Repo.ListItems(ctx, ini.ID)
	if err != nil {
		return domain.Initiative{}, err
	}
	ini.Stories = items
	return ini, nil
}

// ListInitiatives returns every initiative with its stories.
func (e Engine) ListInitiatives(ctx context.Context) ([]domain.Initiative, error) {
	list, err := e.Repo.ListInitiatives(ctx)
	if err != nil {
		return nil, err
	}
	items, err := e.Repo.ListItems(ctx, "")
	if err != nil {
		return nil, err
	}
	byID := map[string][]domain.WorkItem{}
	for _, it := range items {
		byID[it.InitiativeID] = append(byID[it.InitiativeID], it)
	}
	out := make([]domain.Initiative, 0, len(list))
	for _, ini := range list {
		ini.Stories = byID[ini.ID]
		if ini.Stories == nil {
			ini.Stories = []domain.WorkItem{}
		}
		out = append(out, ini)
	}
	return out, nil
}

func (e Engine) LatestEvents(ctx context.Context, limit int, initiativeRef, evtType, entityKind, entityID string) ([]domain.Event, error) {
	iniID := ""
	if initiativeRef != "" {
		ini, err := e.Repo.ResolveInitiative(ctx, initiativeRef)
		if err != nil {
			return nil, err
		}
		iniID = ini.ID
	}
	return e.Repo.LatestEvents(ctx, limit, iniID, evtType, entityKind, entityID)
}
