// Package embedding implements the semantic matching tier: an external
// embedding provider, a per-entity immutable vector index with atomic
// snapshot replacement, and the cosine-similarity stage built on them.
package embedding

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
	"github.com/fieldmapapp/fieldmap-server/internal/ratelimit"
)

// Provider computes embeddings for text. Implementations must be
// deterministic for a given model version: the same text always produces the
// same vector.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// ModelVersion identifies the model; part of every cache key.
	ModelVersion() string
}

// HTTPProviderConfig configures the HTTP embedding client.
type HTTPProviderConfig struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
	RPS      float64
}

// HTTPProvider calls an OpenAI-compatible /v1/embeddings endpoint.
type HTTPProvider struct {
	http     *http.Client
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
	endpoint string
	model    string
	apiKey   string
}

// NewHTTPProvider creates a rate-limited embedding client.
func NewHTTPProvider(cfg HTTPProviderConfig, logger *slog.Logger) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPProvider{
		http:     &http.Client{Timeout: timeout},
		limiter:  ratelimit.New(rps, int(rps)+1),
		logger:   logger,
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
	}
}

// ModelVersion implements Provider.
func (p *HTTPProvider) ModelVersion() string { return p.model }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed implements Provider. Any transport or status failure maps to
// PROVIDER_UNAVAILABLE so callers can degrade the semantic tier instead of
// failing the batch.
func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := p.limiter.Wait(ctx, "embeddings"); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	p.logger.Debug("embedding request", "texts", len(texts), "model", p.model)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, domainerrors.ErrProviderUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.ErrProviderUnavailable.WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domainerrors.ProviderUnavailablef("embedding provider returned %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, domainerrors.ErrProviderUnavailable.WithCause(err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, domainerrors.ProviderUnavailablef("embedding provider returned %d vectors for %d texts", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, domainerrors.ProviderUnavailablef("embedding provider returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
