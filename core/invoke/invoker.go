package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leofalp/devforge/core/overview"
	"github.com/leofalp/devforge/providers/ai"
	"github.com/leofalp/devforge/providers/observability"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Tier is one backing instance of the model service.
type Tier struct {
	Name     string
	Provider ai.Provider
	Model    string
}

// Request is a single-turn prompt.
type Request struct {
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   *int
}

// Response is a successful invocation.
type Response struct {
	Text         string
	Tier         string
	Attempts     int
	FinishReason string
	Usage        *ai.Usage
}

// Invoker sends requests through a primary tier with an optional fallback.
// It is safe for concurrent use.
type Invoker struct {
	primary        Tier
	fallback       *Tier
	maxRetries     int
	retryDelay     time.Duration
	attemptTimeout time.Duration
	classify       func(error) ErrorKind
	observer       observability.Provider
}

// New creates an Invoker for primary. Defaults: 3 retries, 2s fixed delay,
// no per-attempt timeout, no fallback.
func New(primary Tier, opts ...Option) *Invoker {
	if primary.Name == "" {
		primary.Name = "primary"
	}
	inv := &Invoker{
		primary:    primary,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		classify:   Classify,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke runs req through the tier state machine. On failure the returned
// error is an *Error whose Kind tells the caller why.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	observer := inv.observer
	if observer == nil {
		observer = observability.ObserverFromContext(ctx)
	}
	node := overview.NodeFromContext(ctx)

	resp, kind, attempts, err := inv.runTier(ctx, observer, inv.primary, req, inv.maxRetries)
	tier := inv.primary

	if err != nil && kind == KindQuota && inv.fallback != nil && ctx.Err() == nil {
		if observer != nil {
			observer.Warn(ctx, "Primary tier rate-limited, switching to fallback",
				observability.String(observability.AttrGraphNode, node),
				observability.String(observability.AttrInvokeTier, inv.fallback.Name),
				observability.Error(err),
			)
			observer.Counter(observability.MetricInvokeFallbacks).Add(ctx, 1)
		}
		if span := observability.SpanFromContext(ctx); span != nil {
			span.AddEvent(observability.EventInvokeFallback, observability.String(observability.AttrInvokeTier, inv.fallback.Name))
		}

		var fbAttempts int
		resp, kind, fbAttempts, err = inv.runTier(ctx, observer, *inv.fallback, req, 0)
		attempts += fbAttempts
		tier = *inv.fallback
	}

	if err != nil {
		if o := overview.FromContext(ctx); o != nil {
			o.RecordFailure()
		}
		return nil, &Error{Kind: kind, Tier: tier.Name, Attempts: attempts, Err: err}
	}

	resp.Attempts = attempts
	if o := overview.FromContext(ctx); o != nil {
		o.RecordSuccess(node, tier.Name, resp.Usage)
	}
	return resp, nil
}

// runTier tries tier once plus up to retries more times for retryable kinds.
func (inv *Invoker) runTier(ctx context.Context, observer observability.Provider, tier Tier, req Request, retries int) (*Response, ErrorKind, int, error) {
	for attempt := 1; ; attempt++ {
		if observer != nil {
			observer.Counter(observability.MetricInvokeAttempts).Add(ctx, 1,
				observability.String(observability.AttrInvokeTier, tier.Name))
		}

		resp, err := inv.attempt(ctx, tier, req)
		if err == nil {
			resp.Tier = tier.Name
			return resp, KindNone, attempt, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Classify(ctxErr), attempt, fmt.Errorf("%w (last error: %v)", ctxErr, err)
		}

		kind := inv.classify(err)
		if !IsRetryable(kind) || attempt > retries {
			return nil, kind, attempt, err
		}

		if observer != nil {
			observer.Warn(ctx, "Model call failed, retrying",
				observability.String(observability.AttrInvokeTier, tier.Name),
				observability.Int(observability.AttrInvokeAttempt, attempt),
				observability.String(observability.AttrInvokeErrorKind, kind.String()),
				observability.Error(err),
			)
		}
		if span := observability.SpanFromContext(ctx); span != nil {
			span.AddEvent(observability.EventInvokeRetry, observability.Int(observability.AttrInvokeAttempt, attempt))
		}

		select {
		case <-ctx.Done():
			return nil, Classify(ctx.Err()), attempt, ctx.Err()
		case <-time.After(inv.retryDelay):
		}
	}
}

func (inv *Invoker) attempt(ctx context.Context, tier Tier, req Request) (*Response, error) {
	if tier.Provider == nil {
		return nil, errors.New("tier has no provider")
	}

	callCtx := ctx
	if inv.attemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.attemptTimeout)
		defer cancel()
	}

	chat := ai.NewUserRequest(tier.Model, req.System, req.Prompt)
	if req.Temperature != nil || req.MaxTokens != nil {
		chat.GenerationConfig = &ai.GenerationConfig{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	}

	out, err := tier.Provider.SendMessage(callCtx, chat)
	if err != nil {
		return nil, err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         out.Content,
		FinishReason: out.FinishReason,
		Usage:        out.Usage,
	}, nil
}
