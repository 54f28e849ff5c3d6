package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rollcall-go/config"
)

// HTTPExtractor calls an external embedding service over HTTP. The service
// accepts a base64 image and answers with the embedding vector and the
// number of faces it detected.
type HTTPExtractor struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPExtractor creates a client for one embedding service backend.
func NewHTTPExtractor(cfg config.ExtractorBackend) *HTTPExtractor {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second // embedding extraction can be slow
	}
	return &HTTPExtractor{
		name:    cfg.Name,
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the configured backend name.
func (e *HTTPExtractor) Name() string {
	return e.name
}

type embedRequest struct {
	Image string `json:"image"` // base64-encoded image bytes
}

type embedResponse struct {
	Embedding     []float64 `json:"embedding"`
	FacesDetected int       `json:"faces_detected"`
	Message       string    `json:"message,omitempty"`
}

// Extract sends the image to the backend's /embed endpoint.
func (e *HTTPExtractor) Extract(ctx context.Context, image []byte) ([]float64, error) {
	payload, err := json.Marshal(embedRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("x-api-key", e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service error %s: %s", resp.Status, string(body))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if out.FacesDetected == 0 || len(out.Embedding) == 0 {
		return nil, ErrNoFaceDetected
	}

	return out.Embedding, nil
}

// Ping checks the backend's health endpoint.
func (e *HTTPExtractor) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("embedding service unhealthy: %s", resp.Status)
	}
	return nil
}
