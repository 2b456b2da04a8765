package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// PDFCoClient is the third-party OCR fallback, used when the primary OCR
// service fails or returns too little text. Also optional.
type PDFCoClient struct {
	apiKey   string
	endpoint string
	httpc    *http.Client
	log      *slog.Logger
}

func NewPDFCoClient(apiKey, endpoint string) *PDFCoClient {
	return &PDFCoClient{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: strings.TrimSpace(endpoint),
		httpc:    &http.Client{Timeout: 180 * time.Second},
		log:      slog.Default().With("component", "pdfco_client"),
	}
}

func (c *PDFCoClient) Configured() bool {
	return c != nil && c.apiKey != "" && c.endpoint != ""
}

func (c *PDFCoClient) Convert(ctx context.Context, filename string, data []byte) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("pdfco not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"file":   "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		"name":   filename,
		"inline": true,
		"async":  false,
		"ocr":    true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal pdfco request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build pdfco request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("pdfco request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("pdfco error %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed struct {
		Body    string `json:"body"`
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode pdfco response: %w", err)
	}
	if parsed.Error {
		return "", fmt.Errorf("pdfco conversion failed: %s", parsed.Message)
	}
	c.log.Info("pdfco conversion completed", "file", filename, "chars", len(parsed.Body), "elapsed", time.Since(start))
	return parsed.Body, nil
}
