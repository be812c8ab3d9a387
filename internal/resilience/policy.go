package resilience

import "context"

// Policy guards calls to one remote service with a breaker and a retry budget.
// A nil Policy runs fn once.
type Policy struct {
	Breaker     *CircuitBreaker
	Retry       *RetryConfig
	IsRetryable IsRetryableError
}

// Do runs fn under the policy. Every attempt passes through the breaker.
func (p *Policy) Do(ctx context.Context, fn RetryableFunc) error {
	if p == nil {
		return fn(ctx)
	}

	attempt := fn
	if p.Breaker != nil {
		attempt = func(ctx context.Context) error {
			return p.Breaker.Call(func() error { return fn(ctx) })
		}
	}

	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryableNetworkError
	}
	return Retry(ctx, attempt, p.Retry, isRetryable)
}
