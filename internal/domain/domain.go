package domain

import "time"

// Task is a single to-do item. Text is fixed at creation; only Completed changes.
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt" format:"date-time"`
}

// Summary is what the summarizer produces for a set of pending tasks.
type Summary struct {
	Summary  string `json:"summary"`
	Progress string `json:"progress"`
}

// WorkflowResult is the outcome of one summarize-and-notify run.
type WorkflowResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Summary string `json:"summary,omitempty"`
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	EntityID string `json:"entity_id,omitempty"`
	Payload  string `json:"payload_json"`
}

// Pending returns the tasks that are not completed, preserving order.
func Pending(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}
