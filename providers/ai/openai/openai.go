package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/leofalp/devforge/internal/utils"
	"github.com/leofalp/devforge/providers/ai"
	"github.com/leofalp/devforge/providers/observability"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// OpenAIProvider implements ai.Provider against a chat-completions API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a provider from OPENAI_API_KEY and OPENAI_API_BASE_URL.
func New() *OpenAIProvider {
	baseURL := os.Getenv("OPENAI_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAIProvider{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// WithAPIKey sets the API key for the provider
func (p *OpenAIProvider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL sets the base URL for the API
func (p *OpenAIProvider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

// WithHttpClient sets a custom HTTP client
func (p *OpenAIProvider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.client = httpClient
	return p
}

// SendMessage implements the Provider interface
func (p *OpenAIProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	model := request.Model
	if model == "" {
		model = defaultModel
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventLLMRequestStart,
			observability.String(observability.AttrLLMProvider, p.Name()),
			observability.String(observability.AttrLLMModel, model),
		)
		defer span.AddEvent(observability.EventLLMRequestEnd)
	}

	if p.apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ai.ErrMissingAPIKey)
	}

	_, resp, err := utils.DoPostSync[chatCompletionResponse](ctx, p.client, p.baseURL+"/chat/completions", p.apiKey, requestFromGeneric(model, request))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	first := resp.Choices[0]
	result := &ai.ChatResponse{
		Id:           resp.ID,
		Model:        model,
		Content:      first.Message.Content,
		FinishReason: first.FinishReason,
	}
	if resp.Usage != nil {
		result.Usage = &ai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

func requestFromGeneric(model string, request ai.ChatRequest) chatCompletionRequest {
	out := chatCompletionRequest{Model: model}
	if request.SystemPrompt != "" {
		out.Messages = append(out.Messages, chatMessage{Role: string(ai.RoleSystem), Content: request.SystemPrompt})
	}
	for _, msg := range request.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if cfg := request.GenerationConfig; cfg != nil {
		out.Temperature = cfg.Temperature
		out.MaxTokens = cfg.MaxTokens
	}
	return out
}
