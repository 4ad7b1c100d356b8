package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"nabz/internal/config"
)

// systemPrompt frames the completion request for incident analysis.
const systemPrompt = "You are a site reliability assistant. Given the " +
	"alert condition, recent metrics, running processes and log excerpts " +
	"of a server incident, reply with a concise root-cause analysis in at " +
	"most three sentences."

// OpenAISummarizer calls an OpenAI-compatible chat completions endpoint.
type OpenAISummarizer struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewOpenAISummarizer creates a summarizer from provider settings.
func NewOpenAISummarizer(cfg config.SummarizerConfig) *OpenAISummarizer {
	return &OpenAISummarizer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (s *OpenAISummarizer) Name() string {
	return "openai"
}

// IsAvailable reports whether an API key is configured.
func (s *OpenAISummarizer) IsAvailable() bool {
	return s.apiKey != ""
}

// Summarize sends the incident context as a chat completion request.
func (s *OpenAISummarizer) Summarize(ctx context.Context, incidentContext string) (string, error) {
	body := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": incidentContext},
		},
		"max_tokens":  300,
		"temperature": 0.2,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return result.Choices[0].Message.Content, nil
}
