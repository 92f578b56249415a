package tokens

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPricingFor_KnownModel(t *testing.T) {
	p := PricingFor("gpt-4o")
	require.Equal(t, 2.50, p.InputPer1M)
	require.Equal(t, 10.00, p.OutputPer1M)
}

func TestPricingFor_UnknownModelIsZeroCost(t *testing.T) {
	p := PricingFor("some-future-model")
	require.Equal(t, Pricing{}, p)
	require.Zero(t, p.Cost(1_000_000, 1_000_000))
}

func TestContextLengthFor_UnknownModelFallsBack(t *testing.T) {
	require.Equal(t, fallbackContextLength, ContextLengthFor("some-future-model"))
	require.Equal(t, 128_000, ContextLengthFor("gpt-4o"))
}
