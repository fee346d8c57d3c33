package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PabloGalante/tavern-agent/internal/domain"
	"github.com/PabloGalante/tavern-agent/internal/observability"
)

const (
	DefaultTemperature = 0.7
	MaxTokens          = 2000
	RequestTimeout     = 60 * time.Second

	maxResponseBytes = 4 << 20
)

var tracer = otel.Tracer("github.com/PabloGalante/tavern-agent/internal/adapters/llm")

// HTTPGatewayConfig configures an HTTPGateway.
type HTTPGatewayConfig struct {
	Credential string
	// Origin is sent as referrer to providers that want attribution.
	Origin string
	// HTTPClient defaults to a client with RequestTimeout.
	HTTPClient *http.Client
	// Endpoint overrides the endpoint derived from the credential.
	Endpoint *Endpoint
	Tokens   *TokenEstimator
}

// HTTPGateway talks to an OpenAI-compatible chat completions endpoint.
//
// The endpoint is derived once from the first credential. Credential and
// model can be swapped later; calls already in flight keep the values they
// started with.
type HTTPGateway struct {
	client   *http.Client
	endpoint Endpoint
	tokens   *TokenEstimator

	mu         sync.RWMutex
	credential string
	model      string
}

// NewHTTPGateway builds a gateway for cfg.Credential.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	endpoint := DeriveEndpoint(cfg.Credential, cfg.Origin)
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: RequestTimeout}
	}
	return &HTTPGateway{
		client:     client,
		endpoint:   endpoint,
		tokens:     cfg.Tokens,
		credential: strings.TrimSpace(cfg.Credential),
		model:      endpoint.Model,
	}
}

// NewHTTPGatewayFactory returns a domain.GatewayFactory producing HTTP gateways
// that share origin, client and token estimator.
func NewHTTPGatewayFactory(origin string, client *http.Client, tokens *TokenEstimator) domain.GatewayFactory {
	return func(credential string) (domain.Gateway, error) {
		return NewHTTPGateway(HTTPGatewayConfig{
			Credential: credential,
			Origin:     origin,
			HTTPClient: client,
			Tokens:     tokens,
		}), nil
	}
}

// UpdateCredential swaps the bearer token for later calls.
func (g *HTTPGateway) UpdateCredential(credential string) {
	g.mu.Lock()
	g.credential = strings.TrimSpace(credential)
	g.mu.Unlock()
}

// UpdateModel swaps the model for later calls.
func (g *HTTPGateway) UpdateModel(model string) {
	g.mu.Lock()
	g.model = strings.TrimSpace(model)
	g.mu.Unlock()
}

// Endpoint returns the endpoint chosen at construction.
func (g *HTTPGateway) Endpoint() Endpoint { return g.endpoint }

// Model returns the model used by the next call.
func (g *HTTPGateway) Model() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.model
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Converse sends the system prompt, the prior turns and the new input as one
// request and returns the first choice's content. It never retries.
func (g *HTTPGateway) Converse(ctx context.Context, in domain.ConverseInput) (string, error) {
	g.mu.RLock()
	credential, model := g.credential, g.model
	g.mu.RUnlock()

	messages := BuildMessages(in)
	temperature := DefaultTemperature
	if in.Temperature != nil {
		temperature = *in.Temperature
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	ctx, span := tracer.Start(ctx, "llm.Converse", trace.WithAttributes(
		attribute.String("llm.base_url", g.endpoint.BaseURL),
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(messages)),
	))
	defer span.End()

	log := observability.LoggerFromContext(ctx).With("model", model, "messages", len(messages))
	if g.tokens != nil {
		log = log.With("prompt_tokens_estimate", g.tokens.Count(messages))
	}

	start := time.Now()
	text, err := g.do(ctx, credential, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		log.Warn("completion failed", "error", err, "kind", domain.KindOf(err), "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	log.Info("completion done", "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

func (g *HTTPGateway) do(ctx context.Context, credential string, body []byte) (string, error) {
	url := strings.TrimRight(g.endpoint.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)
	for k, v := range g.endpoint.Headers {
		req.Header.Set(k, v)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return "", transportError(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", statusError(res.StatusCode, upstreamMessage(payload))
	}

	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", domain.NewError(domain.ErrMalformedResponse, fmt.Errorf("decode chat response: %w", err))
	}
	if len(out.Choices) == 0 || out.Choices[0].Message == nil || out.Choices[0].Message.Content == nil {
		return "", domain.NewError(domain.ErrMalformedResponse, fmt.Errorf("chat response has no first choice content"))
	}

	if out.Usage != nil {
		observability.LoggerFromContext(ctx).Debug("completion usage",
			"prompt_tokens", out.Usage.PromptTokens,
			"completion_tokens", out.Usage.CompletionTokens,
			"total_tokens", out.Usage.TotalTokens)
	}

	return *out.Choices[0].Message.Content, nil
}

// BuildMessages lays out one system message, the prior turns verbatim, then
// the new input as a user message.
func BuildMessages(in domain.ConverseInput) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(in.Prior)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: in.SystemPrompt})
	messages = append(messages, in.Prior...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: in.Input})
	return messages
}
