package completion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/and27/supportops/internal/config"
)

func configFor(provider, key string) config.CompletionConfig {
	return config.CompletionConfig{
		Provider:      provider,
		APIKey:        key,
		Model:         "gpt-4o-mini",
		MaxTokens:     256,
		RetryAttempts: 2,
	}
}

const chatResponse = `{"choices":[{"message":{"role":"assistant","content":"hello there"}}]}`

func TestCompleteSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponse))
	}))
	defer ts.Close()

	c := New("key", "gpt-4o-mini", ts.URL)
	reply, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q", reply)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponse))
	}))
	defer ts.Close()

	c := New("key", "gpt-4o-mini", ts.URL, WithRetryAttempts(3))
	reply, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q", reply)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	c := New("key", "gpt-4o-mini", ts.URL, WithRetryAttempts(3))
	if _, err := c.Complete(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestCompleteExhaustsRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer ts.Close()

	c := New("key", "gpt-4o-mini", ts.URL, WithRetryAttempts(1))
	if _, err := c.Complete(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestFromConfigDisabled(t *testing.T) {
	if c := FromConfig(configFor("", "")); c != nil {
		t.Error("expected nil client with no provider")
	}
	if c := FromConfig(configFor("openai", "")); c != nil {
		t.Error("expected nil client with no API key")
	}
	if c := FromConfig(configFor("openai", "k")); c == nil {
		t.Error("expected client with provider and key")
	}
}
