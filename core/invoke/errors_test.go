package invoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/leofalp/devforge/providers/ai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "429 status", err: &ai.APIError{StatusCode: http.StatusTooManyRequests}, want: KindQuota},
		{name: "wrapped 429 status", err: fmt.Errorf("gemini: %w", &ai.APIError{StatusCode: 429}), want: KindQuota},
		{name: "401 status", err: &ai.APIError{StatusCode: http.StatusUnauthorized}, want: KindUnauthorized},
		{name: "403 status", err: &ai.APIError{StatusCode: http.StatusForbidden}, want: KindUnauthorized},
		{name: "504 status", err: &ai.APIError{StatusCode: http.StatusGatewayTimeout}, want: KindTimeout},
		{name: "500 status", err: &ai.APIError{StatusCode: http.StatusInternalServerError, Body: "oops"}, want: KindOther},
		{name: "missing key", err: fmt.Errorf("openai: %w", ai.ErrMissingAPIKey), want: KindUnauthorized},
		{name: "deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "quota message", err: errors.New("You exceeded your current quota, please check your plan"), want: KindQuota},
		{name: "rate limit message", err: errors.New("Rate limit reached for requests"), want: KindQuota},
		{name: "api key message", err: errors.New("API key not valid. Please pass a valid API key."), want: KindUnauthorized},
		{name: "timeout message", err: errors.New("read tcp: i/o timeout"), want: KindTimeout},
		{name: "anything else", err: errors.New("unexpected EOF"), want: KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("node backend: %w", &Error{Kind: KindQuota, Tier: "primary", Attempts: 1, Err: errors.New("x")})
	if KindOf(err) != KindQuota {
		t.Errorf("KindOf() = %v, want quota", KindOf(err))
	}
	if KindOf(nil) != KindNone {
		t.Error("KindOf(nil) must be KindNone")
	}
	if !IsRetryable(KindTimeout) || !IsRetryable(KindOther) || IsRetryable(KindQuota) || IsRetryable(KindUnauthorized) {
		t.Error("only timeout and other are retryable on the same tier")
	}
}
