// Package providers talks to the AI backends used by the pipeline: a
// chat-completions endpoint for Phase Analyze/Extract/Enrich and an
// image-generation endpoint for Phase Illustrate. Both are modeled as
// small interfaces so OpenAI-compatible and native-Gemini backends can
// be swapped in from configuration alone.
package providers

import (
	"context"
	"encoding/json"
	"time"
)

// LLMClient sends chat/completion requests to a text model.
type LLMClient interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g. "openai-compatible", "gemini").
	Name() string
}

// ImageClient generates illustrations from a text prompt.
type ImageClient interface {
	// GenerateImage renders a single image for the given prompt.
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)

	// Name returns the client identifier.
	Name() string
}

// Message is a single turn in a chat request.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`

	// Images attaches inline image bytes to a user message, for
	// vision-capable calls like the Illustrate phase's style-guide
	// bootstrap synthesis. Ignored for non-user roles.
	Images [][]byte `json:"-"`
}

// ResponseFormat requests structured (JSON Schema constrained) output.
type ResponseFormat struct {
	Type       string          `json:"type"` // "json_schema"
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ChatRequest is a request to an LLMClient.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Timeout     time.Duration

	// ResponseFormat, when set, requests JSON output validated locally
	// against the canonical schema via validateStructuredJSON.
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// RequestID correlates this call with progress events and logs; a
	// UUID is generated if left empty.
	RequestID string `json:"-"`
}

// ChatResult is the outcome of a chat completion call.
type ChatResult struct {
	Content    string          `json:"content"`
	ParsedJSON json.RawMessage `json:"parsed_json,omitempty"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	CostUSD       float64       `json:"cost_usd"`
	ExecutionTime time.Duration `json:"execution_time"`

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ImageRequest is a request to an ImageClient.
type ImageRequest struct {
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
	Size      string `json:"size,omitempty"` // e.g. "1024x1024"
	RequestID string `json:"-"`
}

// ImageResult is the outcome of an image generation call.
type ImageResult struct {
	ImageData   []byte `json:"-"` // raw bytes, decoded from base64 or downloaded
	ContentType string `json:"content_type"`

	CostUSD       float64       `json:"cost_usd"`
	ExecutionTime time.Duration `json:"execution_time"`

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}
