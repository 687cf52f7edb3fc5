// Package embedding turns free text into fixed-length vectors and computes
// pairwise similarity on top of them. Vectors come from an external Ollama
// endpoint and are cached in a bounded in-process LRU backed by an optional
// write-through Redis layer.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// Sentinel errors for the similarity engine. Callers compare with errors.Is.
var (
	// ErrNotReady means the embedding provider has not completed its
	// one-time initialization. Retryable.
	ErrNotReady = errors.New("embedding: provider not ready")

	// ErrUnavailable means the provider could not be reached or returned
	// a transient failure. Retryable; retry policy is the caller's.
	ErrUnavailable = errors.New("embedding: provider unavailable")

	// ErrDimensionMismatch means two vectors of differing length were
	// compared. Fatal to that one comparison only.
	ErrDimensionMismatch = errors.New("embedding: vector dimension mismatch")
)

// Provider produces fixed-dimensionality vectors for free text.
type Provider interface {
	// Embed returns the vector for text. Dimensionality is fixed across calls.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Init performs one-time idempotent initialization. A failed Init may
	// be retried; embedding is unusable until it succeeds.
	Init(ctx context.Context) error

	// Ready reports whether Init has completed successfully.
	Ready() bool
}

// OllamaConfig holds the connection settings for an Ollama embed endpoint.
type OllamaConfig struct {
	BaseURL string        // e.g. http://localhost:11434
	Model   string        // e.g. bge-m3
	Timeout time.Duration // per-request timeout
}

// DefaultOllamaConfig returns sensible defaults for a local Ollama instance.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL: "http://localhost:11434",
		Model:   "bge-m3",
		Timeout: 10 * time.Second,
	}
}

// OllamaProvider implements Provider against the Ollama REST API.
type OllamaProvider struct {
	config     OllamaConfig
	httpClient *http.Client

	mu    sync.Mutex
	ready bool
	dim   int // learned from the first successful embed
}

// NewOllamaProvider creates an Ollama-backed embedding provider. Init must
// succeed before Embed is usable.
func NewOllamaProvider(config OllamaConfig) *OllamaProvider {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &OllamaProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Init probes the endpoint with a trivial embed request. It is idempotent:
// once initialized, subsequent calls return nil immediately.
func (p *OllamaProvider) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}

	vec, err := p.embed(ctx, "ping")
	if err != nil {
		return fmt.Errorf("%w: init: %v", ErrUnavailable, err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("%w: init returned empty vector", ErrUnavailable)
	}

	p.dim = len(vec)
	p.ready = true
	log.Printf("[embedding] ollama ready, model=%s dim=%d", p.config.Model, p.dim)
	return nil
}

// Ready reports whether the provider finished initialization.
func (p *OllamaProvider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Embed requests a vector for the given text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !p.Ready() {
		return nil, ErrNotReady
	}

	vec, err := p.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p.mu.Lock()
	dim := p.dim
	p.mu.Unlock()
	if dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}

	return vec, nil
}

func (p *OllamaProvider) embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]interface{}{
		"model": p.config.Model,
		"input": text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}

	return parsed.Embeddings[0], nil
}
