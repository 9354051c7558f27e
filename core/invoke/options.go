package invoke

import (
	"time"

	"github.com/leofalp/devforge/providers/observability"
)

// Option configures an Invoker.
type Option func(*Invoker)

// WithFallback sets the tier used once when the primary is rate-limited.
func WithFallback(tier Tier) Option {
	return func(inv *Invoker) {
		if tier.Name == "" {
			tier.Name = "fallback"
		}
		inv.fallback = &tier
	}
}

// WithMaxRetries sets how many times a timeout or unclassified failure is
// retried on the same tier. Negative values are treated as 0.
func WithMaxRetries(n int) Option {
	return func(inv *Invoker) {
		inv.maxRetries = max(n, 0)
	}
}

// WithRetryDelay sets the fixed wait between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(inv *Invoker) {
		inv.retryDelay = max(d, 0)
	}
}

// WithAttemptTimeout bounds each individual provider call. Zero disables it.
func WithAttemptTimeout(d time.Duration) Option {
	return func(inv *Invoker) {
		inv.attemptTimeout = d
	}
}

// WithObserver sets the observer. Without one the invoker uses the observer
// carried by the request context, if any.
func WithObserver(observer observability.Provider) Option {
	return func(inv *Invoker) {
		inv.observer = observer
	}
}

// WithClassifier replaces the default error classification.
func WithClassifier(classify func(error) ErrorKind) Option {
	return func(inv *Invoker) {
		if classify != nil {
			inv.classify = classify
		}
	}
}
