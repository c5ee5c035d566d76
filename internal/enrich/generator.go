// Package enrich produces the per-candidate personalization payload by
// calling an external text-generation service.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prospectly/assignment-engine/internal/domain"
	"github.com/prospectly/assignment-engine/internal/retry"
	"go.uber.org/zap"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultModel       = "gpt-4o-mini"
)

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// requestError carries the HTTP status so the retry predicate can separate
// throttling and server faults from permanent rejections.
type requestError struct {
	statusCode int
	cause      error
}

func (e *requestError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("text generation request: %v", e.cause)
	}
	return fmt.Sprintf("text generation returned status %d", e.statusCode)
}

func (e *requestError) Unwrap() error { return e.cause }

func retryableRequest(err error) bool {
	var reqErr *requestError
	if !errors.As(err, &reqErr) {
		return false
	}
	if reqErr.cause != nil {
		return !errors.Is(reqErr.cause, context.Canceled)
	}
	return reqErr.statusCode == http.StatusTooManyRequests || reqErr.statusCode >= http.StatusInternalServerError
}

// Generator is the personalization port.
type Generator interface {
	// Generate returns the enrichment payload for a candidate, or nil when
	// generation failed after retries. A nil payload skips the candidate for
	// this run only; it stays eligible for re-selection.
	Generate(ctx context.Context, candidate domain.Candidate) (*domain.Enrichment, error)
}

// ChatGenerator calls an OpenAI-compatible chat-completions endpoint.
type ChatGenerator struct {
	client  *resty.Client
	baseURL string
	apiKey  string
	model   string
	policy  retry.Policy
	logger  *zap.Logger
}

func NewChatGenerator(baseURL, apiKey, model string, logger *zap.Logger) (*ChatGenerator, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewChatGeneratorWithClient(baseURL, apiKey, model, client, logger)
}

func NewChatGeneratorWithClient(baseURL, apiKey, model string, client *resty.Client, logger *zap.Logger) (*ChatGenerator, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("text generation base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid text generation base url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("text generation api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)

	return &ChatGenerator{
		client:  client,
		baseURL: trimmedURL,
		apiKey:  apiKey,
		model:   model,
		policy: retry.Policy{
			MaxAttempts: defaultMaxAttempts,
			BaseDelay:   defaultBaseDelay,
			Retryable:   retryableRequest,
		},
		logger: logger,
	}, nil
}

// WithRetryPolicy overrides the retry policy, keeping the retryable predicate.
func (g *ChatGenerator) WithRetryPolicy(policy retry.Policy) *ChatGenerator {
	policy.Retryable = retryableRequest
	g.policy = policy
	return g
}

func (g *ChatGenerator) Generate(ctx context.Context, candidate domain.Candidate) (*domain.Enrichment, error) {
	if err := candidate.Validate(); err != nil {
		return nil, fmt.Errorf("invalid candidate: %w", err)
	}

	var enrichment *domain.Enrichment
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		payload, attemptErr := g.request(ctx, candidate)
		if attemptErr != nil {
			return attemptErr
		}
		enrichment = payload
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.logger.Warn("enrichment failed after retries",
			zap.String("contactId", candidate.ContactID),
			zap.Error(err))
		return nil, nil
	}

	enrichment.ApplyDefaults(candidate)
	return enrichment, nil
}

func (g *ChatGenerator) request(ctx context.Context, candidate domain.Candidate) (*domain.Enrichment, error) {
	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(candidate)},
		},
		Temperature:    0.4,
		ResponseFormat: &formatSpec{Type: "json_object"},
	}

	var parsed chatResponse
	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+g.apiKey).
		SetBody(reqBody).
		SetResult(&parsed).
		Post(g.baseURL + "/v1/chat/completions")
	if err != nil {
		return nil, &requestError{cause: err}
	}
	if response.StatusCode() != http.StatusOK {
		return nil, &requestError{statusCode: response.StatusCode()}
	}
	if len(parsed.Choices) == 0 {
		return nil, &requestError{statusCode: http.StatusOK, cause: errors.New("response has no choices")}
	}

	return parseEnrichment(parsed.Choices[0].Message.Content)
}

// parseEnrichment decodes the model's JSON answer, tolerating markdown code
// fences some models wrap around it.
func parseEnrichment(content string) (*domain.Enrichment, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var enrichment domain.Enrichment
	if err := json.Unmarshal([]byte(content), &enrichment); err != nil {
		return nil, &requestError{statusCode: http.StatusOK, cause: fmt.Errorf("malformed enrichment payload: %w", err)}
	}
	return &enrichment, nil
}
