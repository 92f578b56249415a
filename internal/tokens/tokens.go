// Package tokens estimates prompt sizes against a model's context
// window and tracks running spend across providers via a cost ledger.
package tokens

import (
	"math"
	"strings"
)

// Estimate approximates the token count of text using the same
// char/word dual heuristic as the source spec: whichever of
// chars/4 or words*1.3 is larger, rounded up. Neither estimator alone
// tracks real tokenizers well across languages and punctuation density,
// so the larger of the two is used as a conservative bound.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	chars := float64(len([]rune(text)))
	words := float64(len(strings.Fields(text)))

	byChars := math.Ceil(chars / 4)
	byWords := math.Ceil(words * 1.3)
	if byWords > byChars {
		return int(byWords)
	}
	return int(byChars)
}

// LimitCheck reports whether estimatedTokens fits within a model's
// usable context window after applying safetyMargin (e.g. 0.9 reserves
// 10% headroom for the response and chat-formatting overhead).
type LimitCheck struct {
	EstimatedTokens int
	UsableLimit     int
	Fits            bool
}

// CheckLimit evaluates estimatedTokens against contextLength*safetyMargin.
// A non-positive safetyMargin defaults to 0.9.
func CheckLimit(estimatedTokens, contextLength int, safetyMargin float64) LimitCheck {
	if safetyMargin <= 0 {
		safetyMargin = 0.9
	}
	usable := int(math.Floor(float64(contextLength) * safetyMargin))
	return LimitCheck{
		EstimatedTokens: estimatedTokens,
		UsableLimit:     usable,
		Fits:            estimatedTokens <= usable,
	}
}

// CallEstimate is the Token Accountant's pre-call estimate for a single
// request: input/output/total token counts, the cost they'd incur at
// pricing's rates, and whether the request would overflow the model's
// context window.
type CallEstimate struct {
	InputTokens     int     `json:"inputTokens"`
	OutputTokens    int     `json:"outputTokens"`
	TotalTokens     int     `json:"total"`
	EstimatedCost   float64 `json:"estimatedCost"`
	WillExceedLimit bool    `json:"willExceedLimit"`
	SuggestedSplits int     `json:"suggestedSplits,omitempty"`
}

// EstimateCall produces a CallEstimate for sending inputText with an
// expected output of expectedOutputTokens against a model with the
// given context window, pricing, and safety margin.
func EstimateCall(inputText string, expectedOutputTokens, contextLength int, pricing Pricing, safetyMargin float64) CallEstimate {
	input := Estimate(inputText)
	total := input + expectedOutputTokens
	check := CheckLimit(total, contextLength, safetyMargin)

	est := CallEstimate{
		InputTokens:     input,
		OutputTokens:    expectedOutputTokens,
		TotalTokens:     total,
		EstimatedCost:   pricing.Cost(input, expectedOutputTokens),
		WillExceedLimit: !check.Fits,
	}
	if est.WillExceedLimit {
		est.SuggestedSplits = SuggestedSplits(total, check.UsableLimit)
	}
	return est
}

// SuggestedSplits returns how many roughly-even chunks text should be
// divided into to fit under usableLimit tokens each, given its
// estimated token count. Returns 1 when it already fits.
func SuggestedSplits(estimatedTokens, usableLimit int) int {
	if usableLimit <= 0 || estimatedTokens <= usableLimit {
		return 1
	}
	return int(math.Ceil(float64(estimatedTokens) / float64(usableLimit)))
}
