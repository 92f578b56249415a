package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// GeminiName is the client identifier for Google's native Gemini API.
// Gemini is not OpenAI-wire-compatible, so unlike OpenAICompatibleClient
// this is a direct net/http translation layer rather than an SDK client.
// A configured provider reaches it through Type "gemini", not through
// the shape of its base URL.
const GeminiName = "gemini"

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	ImageModel   string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// GeminiClient implements LLMClient and ImageClient against the native
// Gemini REST API.
type GeminiClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	imageModel   string
	httpClient   *http.Client
}

// NewGeminiClient builds a client from cfg.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiDefaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.5-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.5-flash-image"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &GeminiClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		imageModel:   cfg.ImageModel,
		httpClient:   httpClient,
	}
}

// Name returns the client identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	SystemInstr      *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64         `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *geminiErrorBody `json:"error,omitempty"`
}

type geminiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Chat sends a chat completion request translated into Gemini's
// generateContent wire format.
func (c *GeminiClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	geminiReq := geminiGenerateRequest{}
	for _, m := range req.Messages {
		if m.Role == "system" {
			geminiReq.SystemInstr = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		parts := []geminiPart{{Text: m.Content}}
		if role == "user" {
			for _, img := range m.Images {
				parts = append(parts, geminiPart{InlineData: &geminiInlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(img),
				}})
			}
		}
		geminiReq.Contents = append(geminiReq.Contents, geminiContent{
			Role:  role,
			Parts: parts,
		})
	}
	if req.Temperature > 0 || req.MaxTokens > 0 || req.ResponseFormat != nil {
		geminiReq.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
		if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
			schema, err := extractValidationSchema(req.ResponseFormat.JSONSchema)
			if err != nil {
				return nil, fmt.Errorf("adapt structured schema for gemini: %w", err)
			}
			geminiReq.GenerationConfig.ResponseMIMEType = "application/json"
			geminiReq.GenerationConfig.ResponseSchema = schema
		}
	}

	result := &ChatResult{RequestID: requestID, Provider: GeminiName, ModelUsed: model, Attempts: 1}

	resp, err := c.doGenerate(ctx, model, &geminiReq)
	if err != nil {
		result.Success = false
		result.ErrorType = "http_error"
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, err
	}
	if resp.Error != nil {
		result.Success = false
		result.ErrorType = "api_error"
		result.ErrorMessage = resp.Error.Message
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("gemini API error: %s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		result.Success = false
		result.ErrorType = "empty_response"
		result.ErrorMessage = "no candidates in response"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("gemini: no candidates in response")
	}

	content := resp.Candidates[0].Content.Parts[0].Text
	result.Success = true
	result.Content = content
	result.PromptTokens = resp.UsageMetadata.PromptTokenCount
	result.CompletionTokens = resp.UsageMetadata.CandidatesTokenCount
	result.TotalTokens = resp.UsageMetadata.TotalTokenCount
	result.ExecutionTime = time.Since(start)

	if req.ResponseFormat != nil && content != "" {
		parsed, err := parseStructuredJSON(content)
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

// GenerateImage sends an image-generation request to a Gemini image model,
// which returns inline base64 image data as a response part.
func (c *GeminiClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	model := req.Model
	if model == "" {
		model = c.imageModel
	}

	geminiReq := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}

	result := &ImageResult{RequestID: requestID, Provider: GeminiName, ModelUsed: model, Attempts: 1}

	resp, err := c.doGenerate(ctx, model, &geminiReq)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, err
	}
	if resp.Error != nil {
		result.Success = false
		result.ErrorMessage = resp.Error.Message
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("gemini API error: %s", resp.Error.Message)
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, decErr := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if decErr != nil {
				result.Success = false
				result.ErrorMessage = decErr.Error()
				result.ExecutionTime = time.Since(start)
				return result, fmt.Errorf("decode gemini inline image data: %w", decErr)
			}
			result.Success = true
			result.ImageData = data
			result.ContentType = part.InlineData.MimeType
			result.ExecutionTime = time.Since(start)
			return result, nil
		}
	}

	result.Success = false
	result.ErrorMessage = "no inline image data in response"
	result.ExecutionTime = time.Since(start)
	return result, fmt.Errorf("gemini: no inline image data in response")
}

func (c *GeminiClient) doGenerate(ctx context.Context, model string, body *geminiGenerateRequest) (*geminiGenerateResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError("gemini", resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
	}

	var parsed geminiGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal gemini response: %w", err)
	}
	return &parsed, nil
}

var (
	_ LLMClient   = (*GeminiClient)(nil)
	_ ImageClient = (*GeminiClient)(nil)
)
