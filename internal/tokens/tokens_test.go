package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	require.Equal(t, 0, Estimate(""))
	// "one two three four" = 18 chars -> ceil(18/4)=5, 4 words*1.3=5.2->6
	require.Equal(t, 6, Estimate("one two three four"))
}

func TestCheckLimit(t *testing.T) {
	check := CheckLimit(9000, 10000, 0.9)
	require.True(t, check.Fits)
	require.Equal(t, 9000, check.UsableLimit)

	check = CheckLimit(9001, 10000, 0.9)
	require.False(t, check.Fits)

	check = CheckLimit(100, 1000, 0)
	require.Equal(t, 900, check.UsableLimit)
}

func TestEstimateCall_FitsWithinLimit(t *testing.T) {
	est := EstimateCall("one two three four", 100, 10000, Pricing{InputPer1M: 1, OutputPer1M: 2}, 0.9)
	require.Equal(t, 6, est.InputTokens)
	require.Equal(t, 100, est.OutputTokens)
	require.Equal(t, 106, est.TotalTokens)
	require.False(t, est.WillExceedLimit)
	require.Zero(t, est.SuggestedSplits)
	require.InDelta(t, 6.0/1e6*1+100.0/1e6*2, est.EstimatedCost, 1e-12)
}

func TestEstimateCall_ExceedsLimitSuggestsSplits(t *testing.T) {
	est := EstimateCall(strings.Repeat("word ", 4000), 0, 100, Pricing{}, 0.9)
	require.True(t, est.WillExceedLimit)
	require.Positive(t, est.SuggestedSplits)
}

func TestSuggestedSplits(t *testing.T) {
	require.Equal(t, 1, SuggestedSplits(500, 1000))
	require.Equal(t, 3, SuggestedSplits(2500, 1000))
	require.Equal(t, 1, SuggestedSplits(500, 0))
}

func TestSplitText_FitsWhole(t *testing.T) {
	got := SplitText("short text", 1000)
	require.Equal(t, []string{"short text"}, got)
}

func TestSplitText_ParagraphBoundaries(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40) + "\n\n" + strings.Repeat("c", 40)
	chunks := SplitText(text, 50)
	require.True(t, len(chunks) >= 2)
	for _, c := range chunks {
		require.NotEmpty(t, c)
	}
}

func TestSplitText_OverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("x", 600) + "\n\n" + strings.Repeat("y", 600)
	chunks := SplitText(text, 650)
	require.Len(t, chunks, 2)
	require.Contains(t, chunks[1], "x")
}
