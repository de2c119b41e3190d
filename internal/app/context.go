package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"hutracker/internal/config"
	"hutracker/internal/db"
	"hutracker/internal/domain"
	"hutracker/internal/engine"
	"hutracker/internal/migrate"
	"hutracker/internal/normalize"
	"hutracker/internal/repo"
)

// InitiativeEnv selects the active initiative, from the process
// environment or the workspace session file.
const InitiativeEnv = "HUT_INITIATIVE"

const envFileName = ".env"

// Workspace bundles an opened database with the engine built on it.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Open loads the workspace config (defaults when absent), opens the database
// and applies pending migrations.
func Open(ctx context.Context, workspace string) (*Workspace, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Workspace{Dir: workspace, DB: conn, Engine: engine.New(conn, cfg)}, nil
}

// EnvPath is the session file inside the workspace state directory.
func EnvPath(workspace string) string {
	return filepath.Join(db.Dir(workspace), envFileName)
}

// LoadEnv reads the session file; a missing file yields an empty map.
func LoadEnv(workspace string) (map[string]string, error) {
	env, err := godotenv.Read(EnvPath(workspace))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", EnvPath(workspace), err)
	}
	return env, nil
}

// SetEnvValue stores key in the session file. An empty value removes it.
func SetEnvValue(workspace, key, value string) error {
	env, err := LoadEnv(workspace)
	if err != nil {
		return err
	}
	if value == "" {
		delete(env, key)
	} else {
		env[key] = value
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	return godotenv.Write(env, EnvPath(workspace))
}

// ResolveInitiative picks the initiative a command acts on: the explicit
// reference, then HUT_INITIATIVE from the environment, then the session
// file, and finally the only initiative in the workspace.
func ResolveInitiative(ctx context.Context, r repo.Repo, workspace, override string) (domain.Initiative, error) {
	ref := override
	if ref == "" {
		ref = os.Getenv(InitiativeEnv)
	}
	if ref == "" {
		env, err := LoadEnv(workspace)
		if err != nil {
			return domain.Initiative{}, err
		}
		ref = env[InitiativeEnv]
	}
	if ref != "" {
		ini, err := r.ResolveInitiative(ctx, ref)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Initiative{}, fmt.Errorf("initiative %q: %w", ref, err)
		}
		return ini, err
	}
	ini, err := r.SingleInitiative(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Initiative{}, fmt.Errorf("no initiative found; create one with hut initiative create")
	}
	return ini, err
}

// Select records ini as the workspace's current initiative.
func (w *Workspace) Select(ini domain.Initiative) error {
	return SetEnvValue(w.Dir, InitiativeEnv, ini.ID)
}

// AddItem adds a story to the resolved initiative, which then becomes the
// current one.
func (w *Workspace) AddItem(ctx context.Context, override string, rec normalize.Record, actorID string) (domain.WorkItem, error) {
	ini, err := ResolveInitiative(ctx, w.Engine.Repo, w.Dir, override)
	if err != nil {
		return domain.WorkItem{}, err
	}
	item, err := w.Engine.AddItem(ctx, ini.ID, rec, actorID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := w.Select(ini); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}
