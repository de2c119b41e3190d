package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded in the events table.
const (
	InitiativeCreated = "initiative.created"
	InitiativeUpdated = "initiative.updated"
	InitiativeDeleted = "initiative.deleted"
	ItemCreated       = "item.created"
	ItemUpdated       = "item.updated"
	ItemDeleted       = "item.deleted"
	ItemsImported     = "items.imported"
)

// Entity kinds.
const (
	KindInitiative = "initiative"
	KindItem       = "item"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Record is an event appended inside a transaction; the engine hands the same
// value to the Publisher once the transaction commits.
type Record struct {
	TS           string  `json:"ts"`
	Type         string  `json:"type"`
	InitiativeID string  `json:"initiative_id,omitempty"`
	EntityKind   string  `json:"entity_kind"`
	EntityID     string  `json:"entity_id,omitempty"`
	ActorID      string  `json:"actor_id"`
	Payload      Payload `json:"payload"`
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, initiativeID, entityKind, entityID, actorID string, payload Payload) (Record, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	rec := Record{
		TS:           w.Now().UTC().Format(time.RFC3339),
		Type:         evtType,
		InitiativeID: initiativeID,
		EntityKind:   entityKind,
		EntityID:     entityID,
		ActorID:      actorID,
		Payload:      payload,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,initiative_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		rec.TS, evtType, nullable(initiativeID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
