// Package llm implements the escalation tier: an external reasoner decides
// between ambiguous candidate targets when string and semantic matching
// cannot. Verdicts are cached with a TTL so a recurring column name does not
// pay the provider round-trip twice.
package llm

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
	"github.com/fieldmapapp/fieldmap-server/internal/ratelimit"
)

// CandidateField is one target the reasoner may pick.
type CandidateField struct {
	Name        string
	Description string
	Type        string
}

// Question is one escalation request: a source column and the candidates it
// might map to.
type Question struct {
	Entity     string
	Source     string
	Samples    []string
	Candidates []CandidateField
}

// Answer is the reasoner's verdict. Target is empty when the reasoner
// declines to pick any candidate.
type Answer struct {
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Reasoner decides which candidate a source column maps to.
type Reasoner interface {
	Decide(ctx context.Context, q Question) (*Answer, error)
	ModelVersion() string
}

// HTTPReasonerConfig configures the HTTP reasoner client.
type HTTPReasonerConfig struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
	RPS      float64
}

// HTTPReasoner calls an OpenAI-compatible /v1/chat/completions endpoint and
// expects a JSON object back.
type HTTPReasoner struct {
	http     *http.Client
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
	endpoint string
	model    string
	apiKey   string
}

// NewHTTPReasoner creates a rate-limited reasoner client. The HTTP timeout is
// a hard ceiling; a slow provider degrades the tier, it never stalls a batch.
func NewHTTPReasoner(cfg HTTPReasonerConfig, logger *slog.Logger) *HTTPReasoner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPReasoner{
		http:     &http.Client{Timeout: timeout},
		limiter:  ratelimit.New(rps, int(rps)+1),
		logger:   logger,
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
	}
}

// ModelVersion implements Reasoner.
func (r *HTTPReasoner) ModelVersion() string { return r.model }

const systemPrompt = `You map source column names to target schema fields. ` +
	`Reply with a single JSON object: {"target": "<field name or empty string>", ` +
	`"confidence": <0.0-1.0>, "reasoning": "<one sentence>"}. ` +
	`Pick only from the listed candidates. Use an empty target when none fit.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func buildPrompt(q Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source column: %q\n", q.Source)
	if len(q.Samples) > 0 {
		samples := q.Samples
		if len(samples) > 5 {
			samples = samples[:5]
		}
		fmt.Fprintf(&b, "Sample values: %s\n", strings.Join(samples, ", "))
	}
	b.WriteString("Candidate target fields:\n")
	for _, c := range q.Candidates {
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Type)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Decide implements Reasoner. Transport and parse failures map to
// PROVIDER_UNAVAILABLE so the orchestrator can degrade the tier.
func (r *HTTPReasoner) Decide(ctx context.Context, q Question) (*Answer, error) {
	if len(q.Candidates) == 0 {
		return &Answer{}, nil
	}

	if err := r.limiter.Wait(ctx, "chat"); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(q)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	r.logger.Debug("escalation request", "source", q.Source, "candidates", len(q.Candidates))

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, domainerrors.ErrProviderUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.ErrProviderUnavailable.WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domainerrors.ProviderUnavailablef("reasoner returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, domainerrors.ErrProviderUnavailable.WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return nil, domainerrors.ProviderUnavailable("reasoner returned no choices")
	}

	answer, err := parseAnswer(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, domainerrors.ErrProviderUnavailable.WithCause(err)
	}

	// The reasoner must pick from the offered candidates; anything else is
	// treated as a decline.
	if answer.Target != "" && !containsCandidate(q.Candidates, answer.Target) {
		r.logger.Warn("reasoner picked unlisted target, discarding",
			"source", q.Source,
			"target", answer.Target,
		)
		return &Answer{Reasoning: answer.Reasoning}, nil
	}
	if answer.Confidence < 0 {
		answer.Confidence = 0
	}
	if answer.Confidence > 1 {
		answer.Confidence = 1
	}
	return answer, nil
}

// parseAnswer extracts the JSON object from the model reply, tolerating
// surrounding prose or markdown fences.
func parseAnswer(content string) (*Answer, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reasoner reply")
	}

	var answer Answer
	if err := json.Unmarshal([]byte(content[start:end+1]), &answer); err != nil {
		return nil, fmt.Errorf("parse reasoner reply: %w", err)
	}
	return &answer, nil
}

func containsCandidate(cands []CandidateField, name string) bool {
	for _, c := range cands {
		if c.Name == name {
			return true
		}
	}
	return false
}
