package provider

import (
	"context"
	"sync"
	"time"
)

// circuitState mirrors the teacher's CircuitState in improvements.go.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker trips open after maxFailures consecutive failures and
// half-opens after resetTimeout, exactly the state machine in the
// teacher's CircuitBreaker, generalized from "any operation" to wrapping
// Provider calls specifically.
type circuitBreaker struct {
	mu           sync.Mutex
	state        circuitState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailTime time.Time
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

func (cb *circuitBreaker) execute(op func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case circuitOpen:
		if time.Since(cb.lastFailTime) > cb.resetTimeout {
			cb.state = circuitHalfOpen
		} else {
			cb.mu.Unlock()
			return &Error{Kind: KindOther, Message: "circuit breaker open for provider"}
		}
	}
	cb.mu.Unlock()

	err := op()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = circuitOpen
		}
		return err
	}
	cb.failures = 0
	cb.state = circuitClosed
	return nil
}

// rateLimiter is a token-bucket limiter, ported from the teacher's
// RateLimiter (improvements.go), fronting Provider calls since real LLM
// APIs are themselves rate-limited.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

func newRateLimiter(maxTokens int, refillRate time.Duration) *rateLimiter {
	return &rateLimiter{tokens: maxTokens, maxTokens: maxTokens, refillRate: refillRate, lastRefill: time.Now()}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill); elapsed >= rl.refillRate {
		add := int(elapsed / rl.refillRate)
		if rl.tokens+add > rl.maxTokens {
			add = rl.maxTokens - rl.tokens
		}
		rl.tokens += add
		rl.lastRefill = now
	}
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Guarded wraps a Provider with a circuit breaker and a token-bucket rate
// limiter, so a failing or throttled transport degrades predictably
// instead of retrying indefinitely (SPEC_FULL §3).
type Guarded struct {
	inner   Provider
	breaker *circuitBreaker
	limiter *rateLimiter
}

// NewGuarded wraps inner. maxFailures/resetTimeout configure the circuit
// breaker; maxTokens/refillRate configure the rate limiter.
func NewGuarded(inner Provider, maxFailures int, resetTimeout time.Duration, maxTokens int, refillRate time.Duration) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: newCircuitBreaker(maxFailures, resetTimeout),
		limiter: newRateLimiter(maxTokens, refillRate),
	}
}

func (g *Guarded) Analyze(ctx context.Context, prompt string, promptContext map[string]string) (AnalysisResult, error) {
	if !g.limiter.allow() {
		return AnalysisResult{}, &Error{Kind: KindRateLimit, Message: "local rate limit exceeded", RetryAfter: g.limiter.refillRate}
	}
	var out AnalysisResult
	err := g.breaker.execute(func() error {
		var innerErr error
		out, innerErr = g.inner.Analyze(ctx, prompt, promptContext)
		return innerErr
	})
	return out, err
}

func (g *Guarded) StreamAnalyze(ctx context.Context, prompt string, promptContext map[string]string) (<-chan string, error) {
	if !g.limiter.allow() {
		return nil, &Error{Kind: KindRateLimit, Message: "local rate limit exceeded", RetryAfter: g.limiter.refillRate}
	}
	var ch <-chan string
	err := g.breaker.execute(func() error {
		var innerErr error
		ch, innerErr = g.inner.StreamAnalyze(ctx, prompt, promptContext)
		return innerErr
	})
	return ch, err
}
