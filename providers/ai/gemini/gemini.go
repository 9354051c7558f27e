package gemini

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
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
)

// GeminiProvider implements the ai.Provider interface for Google's Gemini API.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a Gemini provider configured from the environment.
// Environment variables:
//   - GOOGLE_API_KEY or GEMINI_API_KEY: API key for authentication
//   - GEMINI_API_BASE_URL: Base URL for API (optional)
func New() *GeminiProvider {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	baseURL := os.Getenv("GEMINI_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

// WithAPIKey sets the API key for the provider.
func (p *GeminiProvider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL sets the base URL for the API.
func (p *GeminiProvider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

// WithHttpClient sets a custom HTTP client.
func (p *GeminiProvider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.client = httpClient
	return p
}

// SendMessage sends a chat request to the generateContent endpoint.
func (p *GeminiProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	span := observability.SpanFromContext(ctx)

	model := request.Model
	if model == "" {
		model = defaultModel
	}

	if span != nil {
		span.AddEvent(observability.EventLLMRequestStart,
			observability.String(observability.AttrLLMProvider, p.Name()),
			observability.String(observability.AttrLLMModel, model),
		)
		defer span.AddEvent(observability.EventLLMRequestEnd)
	}

	if p.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ai.ErrMissingAPIKey)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	_, resp, err := utils.DoPostSync[generateContentResponse](
		ctx,
		p.client,
		url,
		"", // Gemini authenticates with its own header rather than a bearer token
		requestToGemini(request),
		utils.HeaderOption{Key: "x-goog-api-key", Value: p.apiKey},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	result, err := geminiToGeneric(resp)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	result.Model = model

	if span != nil && result.Usage != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMFinishReason, result.FinishReason),
			observability.Int(observability.AttrLLMTokensTotal, result.Usage.TotalTokens),
		)
	}
	return result, nil
}

func requestToGemini(request ai.ChatRequest) generateContentRequest {
	out := generateContentRequest{}
	if request.SystemPrompt != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: request.SystemPrompt}}}
	}

	for _, msg := range request.Messages {
		role := "user"
		if msg.Role == ai.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: msg.Content}}})
	}

	if cfg := request.GenerationConfig; cfg != nil {
		out.GenerationConfig = &generationConfig{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxTokens,
		}
	}
	return out
}

func geminiToGeneric(resp *generateContentResponse) (*ai.ChatResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty response body")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("no candidates in response")
	}

	first := resp.Candidates[0]
	var text strings.Builder
	if first.Content != nil {
		for _, p := range first.Content.Parts {
			if !p.Thought {
				text.WriteString(p.Text)
			}
		}
	}

	result := &ai.ChatResponse{
		Id:           resp.ResponseID,
		Content:      text.String(),
		FinishReason: strings.ToLower(first.FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = &ai.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return result, nil
}
