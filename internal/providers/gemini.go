package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// GeminiProvider calls the Gemini API, with a client-side request limiter so
// a burst of chunk calls does not trip the backend's quota before the
// workflow-level backoff can react.
type GeminiProvider struct {
	client  *genai.Client
	limiter *rate.Limiter
}

func NewGeminiProvider(ctx context.Context, apiKey string, requestsPerMin int) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if requestsPerMin <= 0 {
		requestsPerMin = 30
	}
	return &GeminiProvider{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), 4),
	}, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ModelInfo, error) {
	info := ModelInfo{Name: "gemini", Model: req.Model}
	if err := g.limiter.Wait(ctx); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("request limiter: %w", err)
	}
	model := g.client.GenerativeModel(req.Model)
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSONOnly {
		model.ResponseMIMEType = "application/json"
	}
	parts := make([]genai.Part, 0, 2)
	if len(req.Document) > 0 {
		mime := req.MimeType
		if mime == "" {
			mime = "application/pdf"
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: req.Document})
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("gemini generate via %s: %w", req.Model, err)
	}
	text := collectText(resp)
	if strings.TrimSpace(text) == "" {
		return GenerateResponse{}, info, fmt.Errorf("gemini %s returned empty response", req.Model)
	}
	return GenerateResponse{Text: text}, info, nil
}

// Probe issues a one-token generate call to check that a model identifier is
// currently callable.
func (g *GeminiProvider) Probe(ctx context.Context, modelID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("request limiter: %w", err)
	}
	m := g.client.GenerativeModel(modelID)
	m.SetMaxOutputTokens(1)
	if _, err := m.GenerateContent(ctx, genai.Text("ok")); err != nil {
		return fmt.Errorf("probe %s: %w", modelID, err)
	}
	return nil
}

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

func collectText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}
