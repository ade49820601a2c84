// Package summary turns a list of pending tasks into a short natural-language
// summary using a hosted language model.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"taskflow/internal/domain"
)

const (
	// Progress is reported with every generated summary.
	Progress = "Generated summary of todos."

	AllCompleted = "All tasks are completed!"
)

// Summarizer produces a summary of the pending work in tasks.
type Summarizer interface {
	Summarize(ctx context.Context, tasks []domain.Task) (domain.Summary, error)
}

// Completer sends one prompt to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const systemPrompt = `You are a personal assistant helping a user understand their priorities.
Reply with a single JSON object of the form {"summary": "<text>"} and nothing else.`

var promptTemplate = template.Must(template.New("summarize").Parse(`Here is a list of to-do items:
{{range .}}- {{.Text}} (Completed: {{.Completed}})
{{end}}
Please provide a concise summary of the PENDING to-do items. Focus on what the user needs to do.
Do not include completed tasks in the summary.
Use no more than 50 words.
`))

// Flow is the Summarizer backed by a Completer.
type Flow struct {
	Model Completer
}

func NewFlow(model Completer) *Flow {
	return &Flow{Model: model}
}

// Summarize only ever shows pending tasks to the model.
func (f *Flow) Summarize(ctx context.Context, tasks []domain.Task) (domain.Summary, error) {
	pending := domain.Pending(tasks)
	if len(pending) == 0 {
		return domain.Summary{Summary: AllCompleted, Progress: Progress}, nil
	}
	if f.Model == nil {
		return domain.Summary{}, errors.New("summary model not configured")
	}
	prompt, err := RenderPrompt(pending)
	if err != nil {
		return domain.Summary{}, err
	}
	reply, err := f.Model.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return domain.Summary{}, err
	}
	text := parseReply(reply)
	if text == "" {
		return domain.Summary{}, errors.New("model returned an empty summary")
	}
	return domain.Summary{Summary: text, Progress: Progress}, nil
}

// RenderPrompt builds the user prompt listing tasks.
func RenderPrompt(tasks []domain.Task) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, tasks); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// parseReply accepts {"summary": "..."} optionally wrapped in a code fence,
// and falls back to the raw text.
func parseReply(reply string) string {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(text), &out); err == nil && out.Summary != "" {
		return strings.TrimSpace(out.Summary)
	}
	return text
}
