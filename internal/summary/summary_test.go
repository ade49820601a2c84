package summary

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskflow/internal/config"
	"taskflow/internal/domain"
)

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
	calls  int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

func tasks() []domain.Task {
	return []domain.Task{
		{ID: "1", Text: "Buy milk"},
		{ID: "2", Text: "File taxes", Completed: true},
		{ID: "3", Text: "Finish report"},
	}
}

func TestFlowPromptOnlyListsPending(t *testing.T) {
	fc := &fakeCompleter{reply: `{"summary":"Buy milk, finish report."}`}
	got, err := NewFlow(fc).Summarize(context.Background(), tasks())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Summary != "Buy milk, finish report." || got.Progress != Progress {
		t.Fatalf("unexpected summary %+v", got)
	}
	if strings.Contains(fc.prompt, "File taxes") {
		t.Fatalf("completed task leaked into prompt:\n%s", fc.prompt)
	}
	for _, want := range []string{"- Buy milk (Completed: false)", "- Finish report (Completed: false)", "50 words"} {
		if !strings.Contains(fc.prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, fc.prompt)
		}
	}
}

func TestFlowAllCompleted(t *testing.T) {
	fc := &fakeCompleter{}
	got, err := NewFlow(fc).Summarize(context.Background(), []domain.Task{{ID: "1", Text: "x", Completed: true}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != AllCompleted || fc.calls != 0 {
		t.Fatalf("expected canned reply without a model call, got %+v calls=%d", got, fc.calls)
	}
}

func TestFlowPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := NewFlow(&fakeCompleter{err: boom}).Summarize(context.Background(), tasks()); !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}
	if _, err := NewFlow(&fakeCompleter{reply: "   "}).Summarize(context.Background(), tasks()); err == nil {
		t.Fatalf("expected error for empty reply")
	}
}

func TestParseReply(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"summary":"Do the thing."}`, "Do the thing."},
		{"```json\n{\"summary\": \"Fenced.\"}\n```", "Fenced."},
		{"Plain text reply", "Plain text reply"},
		{`{"other":"field"}`, `{"other":"field"}`},
		{"  {\"summary\": \"  padded  \"}  ", "padded"},
	}
	for _, tc := range cases {
		if got := parseReply(tc.in); got != tc.want {
			t.Errorf("parseReply(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLocalSummarizer(t *testing.T) {
	got, err := Local{}.Summarize(context.Background(), tasks())
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "2 pending task(s): Buy milk, Finish report." {
		t.Fatalf("unexpected local summary %q", got.Summary)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	s, err := FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(Local); !ok {
		t.Fatalf("expected Local summarizer, got %T", s)
	}

	cfg.Summary.Provider = config.ProviderAnthropic
	if _, err := FromConfig(cfg); err == nil {
		t.Fatalf("expected error without API key")
	}
	cfg.Summary.APIKey = "test-key"
	if s, err = FromConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Flow); !ok {
		t.Fatalf("expected Flow summarizer, got %T", s)
	}

	cfg.Summary.Provider = "bogus"
	if _, err := FromConfig(cfg); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestAnthropicCompleter(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &req)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
"content":[{"type":"text","text":"{\"summary\":\"Buy milk.\"}"}],
"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicCompleter("test-key", "", srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewFlow(c).Summarize(context.Background(), tasks())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Summary != "Buy milk." {
		t.Fatalf("unexpected summary %q", got.Summary)
	}
	if req.Model != DefaultAnthropicModel || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestOpenAICompleter(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Finish report."}}]}`)
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter("test-key", "", srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewFlow(c).Summarize(context.Background(), tasks())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Summary != "Finish report." || calls != 1 {
		t.Fatalf("unexpected summary %q after %d calls", got.Summary, calls)
	}
}

func TestCompleterNoRetryOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"type":"api_error","message":"overloaded"}}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicCompleter("test-key", "", srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Complete(context.Background(), "sys", "prompt"); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
