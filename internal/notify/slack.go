// Package notify delivers text to a Slack incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// ErrNotConfigured is returned by Send when no webhook URL is set.
var ErrNotConfigured = errors.New("webhook URL missing")

// StatusError reports a non-2xx webhook response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Sink accepts a text payload for delivery.
type Sink interface {
	Configured() bool
	Send(ctx context.Context, text string) error
}

type Slack struct {
	URL    string
	Client *http.Client
}

func NewSlack(webhookURL string, timeout time.Duration) *Slack {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Slack{URL: strings.TrimSpace(webhookURL), Client: &http.Client{Timeout: timeout}}
}

func (s *Slack) Configured() bool {
	return s != nil && strings.TrimSpace(s.URL) != ""
}

type slackMessage struct {
	Text string `json:"text"`
}

// Send makes a single POST attempt.
func (s *Slack) Send(ctx context.Context, text string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	data, err := json.Marshal(slackMessage{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return errors.New("invalid webhook URL")
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		// The webhook URL carries the channel token; keep it out of error text.
		var ue *url.Error
		if errors.As(err, &ue) {
			return fmt.Errorf("post webhook: %w", ue.Err)
		}
		return fmt.Errorf("post webhook: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
