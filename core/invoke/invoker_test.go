package invoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/leofalp/devforge/core/overview"
	"github.com/leofalp/devforge/providers/ai"
)

// scriptedProvider returns the queued results in order, repeating the last one.
type scriptedProvider struct {
	mu      sync.Mutex
	name    string
	results []result
	calls   int
	lastReq ai.ChatRequest
}

type result struct {
	text string
	err  error
}

func newScripted(name string, results ...result) *scriptedProvider {
	return &scriptedProvider{name: name, results: results}
}

func (p *scriptedProvider) SendMessage(_ context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReq = req
	r := p.results[min(p.calls, len(p.results)-1)]
	p.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &ai.ChatResponse{Content: r.text, Usage: &ai.Usage{TotalTokens: 10}}, nil
}

func (p *scriptedProvider) Name() string                            { return p.name }
func (p *scriptedProvider) WithAPIKey(string) ai.Provider           { return p }
func (p *scriptedProvider) WithBaseURL(string) ai.Provider          { return p }
func (p *scriptedProvider) WithHttpClient(*http.Client) ai.Provider { return p }

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var (
	errQuota   = &ai.APIError{StatusCode: http.StatusTooManyRequests, Body: "RESOURCE_EXHAUSTED"}
	errAuth    = &ai.APIError{StatusCode: http.StatusUnauthorized, Body: "bad key"}
	errFlaky   = errors.New("connection reset by peer")
	errTimeout = fmt.Errorf("send: %w", context.DeadlineExceeded)
)

func fastOpts(opts ...Option) []Option {
	return append([]Option{WithRetryDelay(time.Millisecond)}, opts...)
}

func TestInvoke_Success(t *testing.T) {
	primary := newScripted("p", result{text: "hello"})
	temp := 0.3
	inv := New(Tier{Name: "primary", Provider: primary, Model: "m1"}, fastOpts()...)

	resp, err := inv.Invoke(context.Background(), Request{System: "sys", Prompt: "hi", Temperature: &temp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello" || resp.Tier != "primary" || resp.Attempts != 1 {
		t.Errorf("response = %+v", resp)
	}
	if primary.lastReq.Model != "m1" || primary.lastReq.SystemPrompt != "sys" {
		t.Errorf("request = %+v", primary.lastReq)
	}
	if primary.lastReq.GenerationConfig == nil || *primary.lastReq.GenerationConfig.Temperature != 0.3 {
		t.Errorf("generation config not forwarded: %+v", primary.lastReq.GenerationConfig)
	}
}

func TestInvoke_RetriesTransientFailures(t *testing.T) {
	primary := newScripted("p", result{err: errFlaky}, result{err: errTimeout}, result{text: "ok"})
	inv := New(Tier{Provider: primary}, fastOpts()...)

	resp, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Attempts != 3 || primary.Calls() != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", resp.Attempts, primary.Calls())
	}
}

func TestInvoke_RetriesExhausted(t *testing.T) {
	primary := newScripted("p", result{err: errFlaky})
	inv := New(Tier{Name: "primary", Provider: primary}, fastOpts(WithMaxRetries(2))...)

	_, err := inv.Invoke(context.Background(), Request{Prompt: "x"})

	var invokeErr *Error
	if !errors.As(err, &invokeErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if invokeErr.Kind != KindOther || invokeErr.Attempts != 3 || primary.Calls() != 3 {
		t.Errorf("err = %+v, calls = %d", invokeErr, primary.Calls())
	}
	if !errors.Is(err, errFlaky) {
		t.Error("the last provider error must stay reachable through Unwrap")
	}
}

func TestInvoke_EmptyResponseIsRetried(t *testing.T) {
	primary := newScripted("p", result{text: "   "}, result{text: "real"})
	inv := New(Tier{Provider: primary}, fastOpts()...)

	resp, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if err != nil || resp.Text != "real" {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}
}

func TestInvoke_UnauthorizedIsTerminal(t *testing.T) {
	primary := newScripted("p", result{err: errAuth})
	fallback := newScripted("f", result{text: "should not be used"})
	inv := New(Tier{Provider: primary}, fastOpts(WithFallback(Tier{Provider: fallback}))...)

	_, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("kind = %v, want unauthorized", KindOf(err))
	}
	if primary.Calls() != 1 || fallback.Calls() != 0 {
		t.Errorf("calls primary=%d fallback=%d", primary.Calls(), fallback.Calls())
	}
}

func TestInvoke_QuotaFallsBack(t *testing.T) {
	primary := newScripted("p", result{err: errQuota})
	fallback := newScripted("f", result{text: `{"a":1}`})
	inv := New(Tier{Name: "gemini-pro", Provider: primary},
		fastOpts(WithFallback(Tier{Name: "gemini-flash", Provider: fallback, Model: "flash"}))...)

	ov := overview.New()
	ctx := overview.WithNode(ov.ToContext(context.Background()), "validate")

	resp, err := inv.Invoke(ctx, Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Tier != "gemini-flash" || resp.Text != `{"a":1}` {
		t.Errorf("response = %+v", resp)
	}
	if primary.Calls() != 1 || fallback.Calls() != 1 {
		t.Errorf("quota must not be retried on the primary: primary=%d fallback=%d", primary.Calls(), fallback.Calls())
	}
	if fallback.lastReq.Model != "flash" {
		t.Errorf("fallback model = %q", fallback.lastReq.Model)
	}

	snap := ov.Snapshot()
	if snap.NodeTiers["validate"] != "gemini-flash" || snap.TierCalls["gemini-flash"] != 1 {
		t.Errorf("overview = %+v", snap)
	}
}

func TestInvoke_QuotaWithoutFallback(t *testing.T) {
	primary := newScripted("p", result{err: errQuota})
	inv := New(Tier{Provider: primary}, fastOpts()...)

	_, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if KindOf(err) != KindQuota || primary.Calls() != 1 {
		t.Fatalf("kind = %v, calls = %d", KindOf(err), primary.Calls())
	}
}

func TestInvoke_FallbackAlsoExhausted(t *testing.T) {
	primary := newScripted("p", result{err: errQuota})
	fallback := newScripted("f", result{err: errors.New("You exceeded your current quota")})
	inv := New(Tier{Provider: primary}, fastOpts(WithFallback(Tier{Name: "backup", Provider: fallback}))...)

	_, err := inv.Invoke(context.Background(), Request{Prompt: "x"})

	var invokeErr *Error
	if !errors.As(err, &invokeErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if invokeErr.Kind != KindQuota || invokeErr.Tier != "backup" || invokeErr.Attempts != 2 {
		t.Errorf("err = %+v", invokeErr)
	}
	if fallback.Calls() != 1 {
		t.Errorf("fallback must be tried exactly once, got %d", fallback.Calls())
	}
}

func TestInvoke_FallbackTransientFailureIsNotRetried(t *testing.T) {
	primary := newScripted("p", result{err: errQuota})
	fallback := newScripted("f", result{err: errFlaky}, result{text: "late"})
	inv := New(Tier{Provider: primary}, fastOpts(WithFallback(Tier{Provider: fallback}))...)

	_, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if KindOf(err) != KindOther || fallback.Calls() != 1 {
		t.Fatalf("kind = %v, fallback calls = %d", KindOf(err), fallback.Calls())
	}
}

func TestInvoke_ContextCanceledDuringBackoff(t *testing.T) {
	primary := newScripted("p", result{err: errFlaky})
	inv := New(Tier{Provider: primary}, WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := inv.Invoke(ctx, Request{Prompt: "x"})
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation must interrupt the retry delay")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInvoke_AttemptTimeout(t *testing.T) {
	slow := &blockingProvider{}
	inv := New(Tier{Provider: slow}, fastOpts(WithMaxRetries(1), WithAttemptTimeout(10*time.Millisecond))...)

	_, err := inv.Invoke(context.Background(), Request{Prompt: "x"})
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %v, want timeout (err %v)", KindOf(err), err)
	}
	if slow.calls != 2 {
		t.Errorf("timeouts are retryable: calls = %d, want 2", slow.calls)
	}
}

type blockingProvider struct{ calls int }

func (p *blockingProvider) SendMessage(ctx context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
	p.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}
func (p *blockingProvider) Name() string                            { return "blocking" }
func (p *blockingProvider) WithAPIKey(string) ai.Provider           { return p }
func (p *blockingProvider) WithBaseURL(string) ai.Provider          { return p }
func (p *blockingProvider) WithHttpClient(*http.Client) ai.Provider { return p }
