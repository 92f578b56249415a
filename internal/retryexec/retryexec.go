// Package retryexec wraps every outbound AI-provider call in a single
// retry policy. There is no proactive, global rate limiter: the only
// throttling this package performs is reactive, triggered by a 429
// response the provider already made.
package retryexec

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/illustra/internal/providers"
)

// Config tunes the executor's backoff schedule.
type Config struct {
	// MaxAttempts bounds both the generic and the rate-limit path.
	MaxAttempts uint

	// BaseDelay is the starting delay for the generic exponential
	// backoff (network errors, 5xx, timeouts).
	BaseDelay time.Duration

	// MaxDelay caps the generic exponential backoff.
	MaxDelay time.Duration

	// RateLimitFirstDelay is the fixed wait before the first rate-limit
	// retry when the provider gave no Retry-After header.
	RateLimitFirstDelay time.Duration

	// RateLimitMaxDelay caps the doubling rate-limit backoff.
	RateLimitMaxDelay time.Duration

	Logger *slog.Logger
}

// DefaultConfig holds the pipeline's stated defaults: a short
// exponential backoff for generic transient errors,
// and a much longer, separately-doubling backoff for rate limits (a
// 65s floor growing to a 120s cap), since 429s from image/chat
// providers tend to clear on the order of a minute, not a second.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         6,
		BaseDelay:           1 * time.Second,
		MaxDelay:            30 * time.Second,
		RateLimitFirstDelay: 65 * time.Second,
		RateLimitMaxDelay:   120 * time.Second,
		Logger:              slog.Default(),
	}
}

// Executor runs provider calls under Config's retry policy.
type Executor struct {
	cfg Config
}

// New creates an Executor. Zero-value Config fields fall back to
// DefaultConfig.
func New(cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.RateLimitFirstDelay == 0 {
		cfg.RateLimitFirstDelay = def.RateLimitFirstDelay
	}
	if cfg.RateLimitMaxDelay == 0 {
		cfg.RateLimitMaxDelay = def.RateLimitMaxDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &Executor{cfg: cfg}
}

// Do runs fn, retrying on classified-transient errors per Config. It
// returns the last error once attempts are exhausted or the error is
// classified as permanent.
func (e *Executor) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(
		func() error {
			attempt++
			err := fn(ctx)
			if err != nil {
				e.cfg.Logger.Warn("provider call failed", "label", label, "attempt", attempt, "error", err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(e.cfg.MaxAttempts),
		retry.RetryIf(isRetryable),
		retry.DelayType(e.delayFor),
		retry.LastErrorOnly(true),
	)
}

// delayFor implements the two-track backoff: a long, slowly-doubling
// wait for rate-limit errors (honoring Retry-After when the provider
// supplied one), and a short exponential-with-jitter wait for
// everything else retryable.
func (e *Executor) delayFor(attempt uint, err error, _ *retry.Config) time.Duration {
	if rle, ok := providers.IsRateLimitError(err); ok {
		if rle.RetryAfter > 0 {
			return rle.RetryAfter
		}
		delay := e.cfg.RateLimitFirstDelay * time.Duration(1<<attempt)
		if delay > e.cfg.RateLimitMaxDelay {
			delay = e.cfg.RateLimitMaxDelay
		}
		return delay
	}

	delay := e.cfg.BaseDelay * time.Duration(1<<attempt)
	if delay > e.cfg.MaxDelay {
		delay = e.cfg.MaxDelay
	}
	jitter := time.Duration(float64(delay) * (0.8 + 0.4*rand.Float64()))
	return jitter
}

// isRetryable classifies an error as transient. Rate limits are always
// retryable (that is the whole point of the reactive design); beyond
// that it mirrors the status-code and message matching the pipeline's
// provider clients use.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := providers.IsRateLimitError(err); ok {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if hse, ok := providers.IsHTTPStatusError(err); ok {
		return hse.StatusCode == http.StatusRequestTimeout || hse.StatusCode >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"timeout", "deadline exceeded",
		"connection refused", "connection reset", "eof",
		"no such host", "dns",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
