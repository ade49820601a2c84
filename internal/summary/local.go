package summary

import (
	"context"
	"fmt"
	"strings"

	"taskflow/internal/domain"
)

// Local summarizes without a model by listing pending task texts. It is
// used when no provider is configured.
type Local struct{}

func (Local) Summarize(_ context.Context, tasks []domain.Task) (domain.Summary, error) {
	pending := domain.Pending(tasks)
	if len(pending) == 0 {
		return domain.Summary{Summary: AllCompleted, Progress: Progress}, nil
	}
	texts := make([]string, len(pending))
	for i, t := range pending {
		texts[i] = t.Text
	}
	return domain.Summary{
		Summary:  fmt.Sprintf("%d pending task(s): %s.", len(pending), strings.Join(texts, ", ")),
		Progress: Progress,
	}, nil
}
