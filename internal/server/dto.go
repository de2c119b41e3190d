package server

import (
	"encoding/json"

	"hutracker/internal/domain"
)

type CreateInitiativeRequest struct {
	Name       string `json:"name" minLength:"1"`
	StartDate  string `json:"start_date,omitempty" example:"2024-07-01"`
	DueDate    string `json:"due_date,omitempty" example:"2024-07-26"`
	SprintDays int    `json:"sprint_days,omitempty" minimum:"0"`
}

// EditRequest sets a single field. Field accepts any known spelling,
// e.g. "Completed Work", "completedWork" or "completed_work".
type EditRequest struct {
	Field string `json:"field" minLength:"1"`
	Value any    `json:"value"`
}

type ImportResponse struct {
	Count int               `json:"count"`
	Items []domain.WorkItem `json:"items"`
}

type EventResponse struct {
	ID           int64           `json:"id"`
	TS           string          `json:"ts"`
	Type         string          `json:"type"`
	InitiativeID string          `json:"initiative_id,omitempty"`
	EntityKind   string          `json:"entity_kind"`
	EntityID     string          `json:"entity_id,omitempty"`
	ActorID      string          `json:"actor_id"`
	Payload      json.RawMessage `json:"payload"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:           e.ID,
		TS:           e.TS,
		Type:         e.Type,
		InitiativeID: e.InitiativeID,
		EntityKind:   e.EntityKind,
		EntityID:     e.EntityID,
		ActorID:      e.ActorID,
		Payload:      payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
