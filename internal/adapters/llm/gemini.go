package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/PabloGalante/tavern-agent/internal/domain"
	"github.com/PabloGalante/tavern-agent/internal/observability"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiGateway serves completions from the Gemini API with the credential
// used as an API key.
//
// The genai client binds its key at construction, so UpdateCredential drops
// the client and the next call builds a new one.
type GeminiGateway struct {
	mu         sync.Mutex
	credential string
	model      string
	client     *genai.Client
}

// NewGeminiGateway creates a gateway. The genai client is created on first use.
func NewGeminiGateway(credential, model string) *GeminiGateway {
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGateway{
		credential: strings.TrimSpace(credential),
		model:      model,
	}
}

// NewGeminiGatewayFactory returns a domain.GatewayFactory for Gemini.
func NewGeminiGatewayFactory(model string) domain.GatewayFactory {
	return func(credential string) (domain.Gateway, error) {
		return NewGeminiGateway(credential, model), nil
	}
}

func (g *GeminiGateway) UpdateCredential(credential string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.credential = strings.TrimSpace(credential)
	g.client = nil
}

func (g *GeminiGateway) UpdateModel(model string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.model = strings.TrimSpace(model)
}

func (g *GeminiGateway) clientFor(ctx context.Context) (*genai.Client, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.credential,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, "", fmt.Errorf("creating genai client: %w", err)
		}
		g.client = client
	}
	return g.client, g.model, nil
}

// Converse implements domain.Gateway on top of genai.
func (g *GeminiGateway) Converse(ctx context.Context, in domain.ConverseInput) (string, error) {
	client, model, err := g.clientFor(ctx)
	if err != nil {
		return "", err
	}

	var contents []*genai.Content
	for _, m := range in.Prior {
		var role genai.Role = genai.RoleUser
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(in.Input, genai.RoleUser))

	temp := float32(DefaultTemperature)
	if in.Temperature != nil {
		temp = float32(*in.Temperature)
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(in.SystemPrompt, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   int32(MaxTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "llm.Converse", trace.WithAttributes(
		attribute.String("llm.backend", "gemini"),
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(contents)+1),
	))
	defer span.End()

	log := observability.LoggerFromContext(ctx).With("model", model, "backend", "gemini")

	res, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		err = geminiError(err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		log.Warn("completion failed", "error", err, "kind", domain.KindOf(err))
		return "", err
	}

	text := res.Text()
	if text == "" {
		return "", domain.NewError(domain.ErrMalformedResponse, fmt.Errorf("gemini returned empty text"))
	}
	log.Info("completion done")
	return text, nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return statusError(apiErrPtr.Code, apiErrPtr.Message)
	}
	return transportError(err)
}

