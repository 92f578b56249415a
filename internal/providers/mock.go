package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MockClientName identifies MockClient in tests and fixtures.
const MockClientName = "mock"

// MockClient is an LLMClient and ImageClient double for tests that
// should not make network calls.
type MockClient struct {
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // fail after N requests, 0 = never
	ResponseText string
	ResponseJSON []byte
	ImageBytes   []byte

	requestCount atomic.Int64
}

// NewMockClient creates a mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
		ImageBytes:   []byte{0x89, 'P', 'N', 'G'},
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string { return MockClientName }

// Chat returns the configured canned response.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	count := c.requestCount.Add(1)
	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail || (c.FailAfter > 0 && int(count) > c.FailAfter) {
		result.Success = false
		result.ErrorMessage = "mock client configured to fail"
		return result, fmt.Errorf("mock client configured to fail")
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		return result, ctx.Err()
	}

	result.Success = true
	result.Content = c.ResponseText
	if req.ResponseFormat != nil && len(c.ResponseJSON) > 0 {
		parsed, err := parseStructuredJSON(string(c.ResponseJSON))
		if err != nil {
			return result, err
		}
		if err := validateStructuredJSON(req.ResponseFormat.JSONSchema, parsed); err != nil {
			return result, err
		}
		result.ParsedJSON = parsed
		result.Content = string(c.ResponseJSON)
	}
	return result, nil
}

// GenerateImage returns the configured canned image bytes.
func (c *MockClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	count := c.requestCount.Add(1)
	result := &ImageResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}
	if c.ShouldFail || (c.FailAfter > 0 && int(count) > c.FailAfter) {
		result.Success = false
		result.ErrorMessage = "mock client configured to fail"
		return result, fmt.Errorf("mock client configured to fail")
	}
	result.Success = true
	result.ImageData = c.ImageBytes
	result.ContentType = "image/png"
	return result, nil
}

// RequestCount returns the number of calls made so far.
func (c *MockClient) RequestCount() int64 { return c.requestCount.Load() }

var (
	_ LLMClient   = (*MockClient)(nil)
	_ ImageClient = (*MockClient)(nil)
)
