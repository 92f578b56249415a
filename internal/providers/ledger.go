package providers

import (
	"context"

	"github.com/jackzampolin/illustra/internal/tokens"
)

// Ledger is the subset of *tokens.CostLedger the recording wrappers
// below depend on, kept narrow so this package doesn't need to know
// about the ledger's snapshot/reporting methods.
type Ledger interface {
	Record(provider string, promptTokens, completionTokens int, costUSD float64)
}

// ledgerLLMClient wraps an LLMClient, recording every successful call's
// usage into a Ledger before returning it to the caller. Phases never
// see this wrapper; it's inserted once at registry-construction time so
// cost accounting stays out of the phase logic entirely.
type ledgerLLMClient struct {
	LLMClient
	provider string
	ledger   Ledger
}

// WithLedger wraps client so every completed Chat call is recorded
// against ledger under provider's name.
func WithLedger(client LLMClient, provider string, ledger Ledger) LLMClient {
	if ledger == nil {
		return client
	}
	return &ledgerLLMClient{LLMClient: client, provider: provider, ledger: ledger}
}

func (c *ledgerLLMClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	result, err := c.LLMClient.Chat(ctx, req)
	if err != nil || result == nil {
		return result, err
	}
	cost := result.CostUSD
	if cost == 0 {
		cost = tokens.PricingFor(result.ModelUsed).Cost(result.PromptTokens, result.CompletionTokens)
	}
	c.ledger.Record(c.provider, result.PromptTokens, result.CompletionTokens, cost)
	return result, nil
}

// ledgerImageClient is ImageClient's counterpart to ledgerLLMClient.
// Image generation has no prompt/completion token split worth
// recording, so only cost is tracked.
type ledgerImageClient struct {
	ImageClient
	provider string
	ledger   Ledger
}

// WithLedgerImage wraps client so every completed GenerateImage call is
// recorded against ledger under provider's name.
func WithLedgerImage(client ImageClient, provider string, ledger Ledger) ImageClient {
	if ledger == nil {
		return client
	}
	return &ledgerImageClient{ImageClient: client, provider: provider, ledger: ledger}
}

func (c *ledgerImageClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	result, err := c.ImageClient.GenerateImage(ctx, req)
	if err != nil || result == nil {
		return result, err
	}
	// The per-token cost model doesn't cover image generation; only a
	// provider-reported CostUSD is recorded here, so an unmetered
	// provider correctly surfaces zero rather than a made up per-image
	// rate.
	c.ledger.Record(c.provider, 0, 0, result.CostUSD)
	return result, nil
}
