package providers

import (
	"context"
	"fmt"
	"strings"
)

// MockProvider returns deterministic extraction payloads for tests and
// offline development.
type MockProvider struct {
	DownModels map[string]bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{DownModels: map[string]bool{}}
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ModelInfo, error) {
	_ = ctx
	info := ModelInfo{Name: "mock", Model: req.Model}
	if m.DownModels[req.Model] {
		return GenerateResponse{}, info, fmt.Errorf("googleapi: Error 404: model %s not found", req.Model)
	}
	text := `{"items":[` +
		`{"description":"CONCRETE FCK 25 MPA","unit":"m3","quantity":10.5,"unit_price":420.0,"total":4410.0},` +
		`{"description":"STEEL REBAR CA-50","unit":"kg","quantity":850.0,"unit_price":8.2,"total":6970.0}` +
		`],"summary":"mock extraction"}`
	if strings.Contains(strings.ToLower(req.Prompt), "empty") {
		text = `{"items":[]}`
	}
	return GenerateResponse{Text: text}, info, nil
}

func (m *MockProvider) Probe(ctx context.Context, modelID string) error {
	_ = ctx
	if m.DownModels[modelID] {
		return fmt.Errorf("googleapi: Error 404: model %s not found", modelID)
	}
	return nil
}
