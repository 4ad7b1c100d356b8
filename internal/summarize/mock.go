package summarize

import "context"

// MockSummarizer is a deterministic provider for development and testing,
// and the stand-in when summarization is disabled.
type MockSummarizer struct {
	// Response overrides the default canned text when non-empty
	Response string

	// Err, when set, is returned from every Summarize call
	Err error
}

// NewMockSummarizer creates a mock provider.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// Name returns the provider identifier.
func (m *MockSummarizer) Name() string {
	return "mock"
}

// IsAvailable always reports true.
func (m *MockSummarizer) IsAvailable() bool {
	return true
}

// Summarize returns the configured response or a canned summary.
func (m *MockSummarizer) Summarize(ctx context.Context, incidentContext string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return "Automatic analysis unavailable; review the correlated metrics and logs.", nil
}
