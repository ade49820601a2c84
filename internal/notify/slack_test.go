package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSlackSendPostsJSON(t *testing.T) {
	var gotBody map[string]any
	var gotType, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	s := NewSlack(srv.URL, time.Second)
	if !s.Configured() {
		t.Fatalf("expected configured sink")
	}
	if err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotMethod != http.MethodPost || gotType != "application/json" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotType)
	}
	if len(gotBody) != 1 || gotBody["text"] != "hello" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
}

func TestSlackSendStatusError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewSlack(srv.URL, time.Second).Send(context.Background(), "hello")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound || se.Body != "no_service" {
		t.Fatalf("unexpected status error %+v", se)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}

func TestSlackNotConfigured(t *testing.T) {
	s := NewSlack("   ", 0)
	if s.Configured() {
		t.Fatalf("blank URL must not count as configured")
	}
	if err := s.Send(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if s.Client.Timeout != defaultTimeout {
		t.Fatalf("expected default timeout, got %s", s.Client.Timeout)
	}
}

func TestSlackTransportErrorOmitsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	hook := srv.URL + "/services/T000/B000/SECRETTOKEN"
	srv.Close()

	err := NewSlack(hook, time.Second).Send(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error from closed server")
	}
	if strings.Contains(err.Error(), "SECRETTOKEN") {
		t.Fatalf("error leaks the webhook URL: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "post webhook: ") {
		t.Fatalf("unexpected error %v", err)
	}

	err = NewSlack("http://[::1]:namedport/services/SECRETTOKEN", time.Second).Send(context.Background(), "hello")
	if err == nil || strings.Contains(err.Error(), "SECRETTOKEN") {
		t.Fatalf("invalid URL error leaks the webhook URL: %v", err)
	}
}
