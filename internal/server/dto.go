package server

import (
	"encoding/json"
	"time"

	"taskflow/internal/domain"
)

// Request payloads

type CreateTaskRequest struct {
	Text string `json:"text" minLength:"1" doc:"Task text; surrounding whitespace is trimmed"`
}

// Response payloads

type TaskResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt" format:"date-time"`
}

type SummaryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Summary string `json:"summary,omitempty"`
}

type EventResponse struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts" format:"date-time"`
	Type     string         `json:"type"`
	EntityID string         `json:"entity_id,omitempty"`
	Payload  map[string]any `json:"payload"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse(t)
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		payload := map[string]any{}
		if e.Payload != "" {
			_ = json.Unmarshal([]byte(e.Payload), &payload)
		}
		out = append(out, EventResponse{
			ID:       e.ID,
			TS:       e.TS,
			Type:     e.Type,
			EntityID: e.EntityID,
			Payload:  payload,
		})
	}
	return out
}
