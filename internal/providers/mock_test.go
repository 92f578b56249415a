package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockClient_Chat(t *testing.T) {
	c := NewMockClient()
	res, err := c.Chat(context.Background(), &ChatRequest{Model: "test-model"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "mock response", res.Content)
	require.Equal(t, int64(1), c.RequestCount())
}

func TestMockClient_Chat_FailAfter(t *testing.T) {
	c := NewMockClient()
	c.FailAfter = 1

	_, err := c.Chat(context.Background(), &ChatRequest{})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), &ChatRequest{})
	require.Error(t, err)
}

func TestMockClient_Chat_StructuredOutput(t *testing.T) {
	c := NewMockClient()
	c.ResponseJSON = []byte(`{"ok":true}`)

	schema := []byte(`{"type":"object","properties":{"ok":{"type":"boolean"}},"required":["ok"]}`)
	res, err := c.Chat(context.Background(), &ChatRequest{
		ResponseFormat: &ResponseFormat{Type: "json_schema", JSONSchema: schema},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(res.ParsedJSON))
}

func TestMockClient_GenerateImage(t *testing.T) {
	c := NewMockClient()
	res, err := c.GenerateImage(context.Background(), &ImageRequest{Prompt: "a dragon"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotEmpty(t, res.ImageData)
}

func TestIsRateLimitError(t *testing.T) {
	err := &RateLimitError{Message: "too many requests", StatusCode: 429}
	rle, ok := IsRateLimitError(err)
	require.True(t, ok)
	require.Equal(t, 429, rle.StatusCode)

	_, ok = IsRateLimitError(nil)
	require.False(t, ok)
}

func TestParseRetryAfter_Seconds(t *testing.T) {
	require.Equal(t, "5s", parseRetryAfter("5").String())
	require.Equal(t, "0s", parseRetryAfter("").String())
	require.Equal(t, "0s", parseRetryAfter("not-a-duration").String())
}
