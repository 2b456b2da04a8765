package providers

import "context"

type ModelInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type GenerateRequest struct {
	Model    string `json:"model"`
	System   string `json:"system,omitempty"`
	Prompt   string `json:"prompt"`
	Document []byte `json:"document,omitempty"` // inline document bytes, sent alongside the prompt
	MimeType string `json:"mime_type,omitempty"`
	JSONOnly bool   `json:"json_only"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

// TextModel is the AI structuring backend. Probe issues a minimal liveness
// call so availability failures are distinguishable from content failures.
type TextModel interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ModelInfo, error)
	Probe(ctx context.Context, model string) error
}
