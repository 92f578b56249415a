package tokens

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPricing_Cost(t *testing.T) {
	p := Pricing{InputPer1M: 1.0, OutputPer1M: 2.0}
	cost := p.Cost(1_000_000, 500_000)
	require.InDelta(t, 2.0, cost, 0.0001)
}

func TestCostLedger_RecordAndTotals(t *testing.T) {
	l := NewCostLedger()
	l.Record("openai", 100, 50, 0.01)
	l.Record("openai", 200, 100, 0.02)
	l.Record("gemini", 50, 50, 0.005)

	totals := l.Totals()
	require.Equal(t, 2, totals["openai"].Calls)
	require.Equal(t, 300, totals["openai"].PromptTokens)
	require.InDelta(t, 0.03, totals["openai"].CostUSD, 0.0001)
	require.InDelta(t, 0.035, l.Total(), 0.0001)
}
