package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nabz/internal/config"
)

func TestOpenAISummarizer(t *testing.T) {
	t.Run("returns completion content", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")

			var req struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if req.Model != "gpt-4o-mini" {
				t.Errorf("unexpected model: %q", req.Model)
			}
			if len(req.Messages) != 2 || req.Messages[1].Content != "incident context" {
				t.Errorf("unexpected messages: %+v", req.Messages)
			}

			json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"content": "Disk filled up on /."}},
				},
			})
		}))
		defer srv.Close()

		s := NewOpenAISummarizer(config.SummarizerConfig{
			Enabled: true, Endpoint: srv.URL, APIKey: "key", Model: "gpt-4o-mini",
			Timeout: 5 * time.Second,
		})

		got, err := s.Summarize(context.Background(), "incident context")
		if err != nil {
			t.Fatalf("Summarize failed: %v", err)
		}
		if got != "Disk filled up on /." {
			t.Errorf("unexpected summary: %q", got)
		}
		if gotAuth != "Bearer key" {
			t.Errorf("unexpected auth header: %q", gotAuth)
		}
	})

	t.Run("non-200 response is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		s := NewOpenAISummarizer(config.SummarizerConfig{
			Endpoint: srv.URL, APIKey: "key", Model: "gpt-4o-mini", Timeout: 5 * time.Second,
		})
		if _, err := s.Summarize(context.Background(), "ctx"); err == nil {
			t.Error("expected error for 429 response")
		}
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
		}))
		defer srv.Close()

		s := NewOpenAISummarizer(config.SummarizerConfig{
			Endpoint: srv.URL, APIKey: "key", Model: "gpt-4o-mini", Timeout: 5 * time.Second,
		})
		if _, err := s.Summarize(context.Background(), "ctx"); err == nil {
			t.Error("expected error for empty choices")
		}
	})
}

func TestNewFromConfig(t *testing.T) {
	if s := NewFromConfig(config.SummarizerConfig{Enabled: false}); s.Name() != "mock" {
		t.Errorf("expected mock when disabled, got %s", s.Name())
	}
	if s := NewFromConfig(config.SummarizerConfig{Enabled: true, APIKey: "k"}); s.Name() != "openai" {
		t.Errorf("expected openai when enabled, got %s", s.Name())
	}
}
