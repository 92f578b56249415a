package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAICompatibleName is the client identifier for any backend that
// speaks the OpenAI chat-completions and images wire format, whether
// that is OpenAI itself or a compatible gateway reached via BaseURL.
const OpenAICompatibleName = "openai-compatible"

// OpenAICompatibleConfig configures an OpenAICompatibleClient.
type OpenAICompatibleConfig struct {
	APIKey       string
	BaseURL      string // optional; empty uses the SDK's OpenAI default
	DefaultModel string
	ImageModel   string
	Timeout      time.Duration
	MaxRetries   int // SDK-level transport retries, separate from the retry executor
	HTTPClient   *http.Client
}

// OpenAICompatibleClient implements LLMClient and ImageClient using the
// official OpenAI SDK, pointed at either api.openai.com or a compatible
// gateway via BaseURL.
type OpenAICompatibleClient struct {
	defaultModel string
	imageModel   string
	client       openai.Client
}

// NewOpenAICompatibleClient builds a client from cfg, filling in
// defaults for anything the caller left unset before constructing the
// underlying SDK client.
func NewOpenAICompatibleClient(cfg OpenAICompatibleConfig) *OpenAICompatibleClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4.1-mini"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gpt-image-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAICompatibleClient{
		defaultModel: cfg.DefaultModel,
		imageModel:   cfg.ImageModel,
		client:       openai.NewClient(opts...),
	}
}

// Name returns the client identifier.
func (c *OpenAICompatibleClient) Name() string {
	return OpenAICompatibleName
}

// Chat sends a chat completion request.
func (c *OpenAICompatibleClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) > 0 {
				params.Messages = append(params.Messages, userMessageWithImages(m.Content, m.Images))
			} else {
				params.Messages = append(params.Messages, openai.UserMessage(m.Content))
			}
		}
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		adapted, err := sanitizeStructuredSchemaForModel(model, req.ResponseFormat.JSONSchema)
		if err != nil {
			return nil, fmt.Errorf("adapt structured schema: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_output",
					Schema: adapted,
				},
			},
		}
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OpenAICompatibleName,
		ModelUsed: model,
		Attempts:  1,
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		result.Success = false
		result.ErrorType = "http_error"
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		result.Success = false
		result.ErrorType = "empty_response"
		result.ErrorMessage = "no choices in response"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("openai-compatible: no choices in response (model=%s, id=%s)", resp.Model, resp.ID)
	}

	result.Success = true
	result.Content = resp.Choices[0].Message.Content
	result.ModelUsed = resp.Model
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)
	result.ExecutionTime = time.Since(start)

	if req.ResponseFormat != nil && result.Content != "" {
		parsed, err := parseStructuredJSON(result.Content)
		if err != nil {
			result.Success = false
			result.ErrorType = "json_parse"
			result.ErrorMessage = err.Error()
			return result, fmt.Errorf("parse structured output: %w", err)
		}
		if err := validateStructuredJSON(req.ResponseFormat.JSONSchema, parsed); err != nil {
			result.Success = false
			result.ErrorType = "schema_validation"
			result.ErrorMessage = err.Error()
			return result, err
		}
		result.ParsedJSON = parsed
	}

	return result, nil
}

// GenerateImage renders an image via the Images API.
func (c *OpenAICompatibleClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	model := req.Model
	if model == "" {
		model = c.imageModel
	}

	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(model),
		N:      openai.Int(1),
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}

	result := &ImageResult{
		RequestID: requestID,
		Provider:  OpenAICompatibleName,
		ModelUsed: model,
		Attempts:  1,
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, c.mapError(err)
	}
	if len(resp.Data) == 0 {
		result.Success = false
		result.ErrorMessage = "no image data in response"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("openai-compatible: no image data in response")
	}

	data, err := decodeImagePayload(resp.Data[0])
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, err
	}

	result.Success = true
	result.ImageData = data
	result.ContentType = "image/png"
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func (c *OpenAICompatibleClient) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("openai-compatible rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		return &HTTPStatusError{Provider: "openai-compatible", StatusCode: apiErr.StatusCode, Body: apiErr.Message}
	}
	return err
}

var (
	_ LLMClient   = (*OpenAICompatibleClient)(nil)
	_ ImageClient = (*OpenAICompatibleClient)(nil)
)
