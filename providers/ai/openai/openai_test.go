package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leofalp/devforge/providers/ai"
)

func TestSendMessage(t *testing.T) {
	var got chatCompletionRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"id":"c1","choices":[{"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}],"usage":{"total_tokens":9}}`)
	}))
	defer server.Close()

	p := New()
	p.WithAPIKey("sk-test").WithBaseURL(server.URL + "/").WithHttpClient(server.Client())

	maxTokens := 128
	req := ai.NewUserRequest("gpt-test", "system text", "user text")
	req.GenerationConfig = &ai.GenerationConfig{MaxTokens: &maxTokens}

	resp, err := p.SendMessage(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "user text" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 128 || got.Temperature != nil {
		t.Errorf("generation params = %+v", got)
	}
	if resp.Content != "done" || resp.Id != "c1" || resp.Usage.TotalTokens != 9 {
		t.Errorf("response = %+v", resp)
	}
}

func TestSendMessage_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	defer server.Close()

	p := New()
	p.WithAPIKey("bad").WithBaseURL(server.URL).WithHttpClient(server.Client())

	_, err := p.SendMessage(context.Background(), ai.NewUserRequest("", "", "hi"))
	if ai.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestSendMessage_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"c1","choices":[]}`)
	}))
	defer server.Close()

	p := New()
	p.WithAPIKey("k").WithBaseURL(server.URL).WithHttpClient(server.Client())

	if _, err := p.SendMessage(context.Background(), ai.NewUserRequest("", "", "hi")); err == nil {
		t.Fatal("expected an error for an empty choice list")
	}
}
