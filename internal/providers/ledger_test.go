package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	result *ChatResult
	err    error
}

func (c *fakeChatClient) Name() string { return "fake" }
func (c *fakeChatClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.result, c.err
}

type fakeImageClient struct {
	result *ImageResult
	err    error
}

func (c *fakeImageClient) Name() string { return "fake" }
func (c *fakeImageClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	return c.result, c.err
}

type recordCall struct {
	provider           string
	prompt, completion int
	cost               float64
}

type fakeLedger struct{ calls []recordCall }

func (l *fakeLedger) Record(provider string, promptTokens, completionTokens int, costUSD float64) {
	l.calls = append(l.calls, recordCall{provider, promptTokens, completionTokens, costUSD})
}

func TestWithLedger_RecordsUsageUsingProviderCost(t *testing.T) {
	ledger := &fakeLedger{}
	client := &fakeChatClient{result: &ChatResult{
		PromptTokens: 100, CompletionTokens: 50, CostUSD: 0.02, ModelUsed: "gpt-4o",
	}}
	wrapped := WithLedger(client, "openai", ledger)

	_, err := wrapped.Chat(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	require.Len(t, ledger.calls, 1)
	require.Equal(t, recordCall{"openai", 100, 50, 0.02}, ledger.calls[0])
}

func TestWithLedger_FallsBackToPricingTableWhenCostUnset(t *testing.T) {
	ledger := &fakeLedger{}
	client := &fakeChatClient{result: &ChatResult{
		PromptTokens: 1_000_000, CompletionTokens: 1_000_000, ModelUsed: "gpt-4o",
	}}
	wrapped := WithLedger(client, "openai", ledger)

	_, err := wrapped.Chat(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	require.Len(t, ledger.calls, 1)
	require.InDelta(t, 12.50, ledger.calls[0].cost, 1e-9)
}

func TestWithLedger_SkipsRecordingOnError(t *testing.T) {
	ledger := &fakeLedger{}
	client := &fakeChatClient{err: context.DeadlineExceeded}
	wrapped := WithLedger(client, "openai", ledger)

	_, err := wrapped.Chat(context.Background(), &ChatRequest{})
	require.Error(t, err)
	require.Empty(t, ledger.calls)
}

func TestWithLedger_NilLedgerIsNoOp(t *testing.T) {
	client := &fakeChatClient{result: &ChatResult{PromptTokens: 10}}
	wrapped := WithLedger(client, "openai", nil)
	require.Same(t, LLMClient(client), wrapped)
}

func TestWithLedgerImage_RecordsProviderReportedCostOnly(t *testing.T) {
	ledger := &fakeLedger{}
	client := &fakeImageClient{result: &ImageResult{CostUSD: 0.04}}
	wrapped := WithLedgerImage(client, "openai", ledger)

	_, err := wrapped.GenerateImage(context.Background(), &ImageRequest{})
	require.NoError(t, err)
	require.Len(t, ledger.calls, 1)
	require.Equal(t, recordCall{"openai", 0, 0, 0.04}, ledger.calls[0])
}
