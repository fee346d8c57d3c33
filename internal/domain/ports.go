package domain

import "context"

// ConverseInput is one completion request: a system prompt, prior turns that
// the caller already truncated, and the new user input.
type ConverseInput struct {
	SystemPrompt string
	Prior        []ChatMessage
	Input        string

	// Temperature overrides the gateway default when non-nil.
	Temperature *float64
}

// Gateway issues chat completions against a remote model.
type Gateway interface {
	Converse(ctx context.Context, in ConverseInput) (string, error)
	UpdateCredential(credential string)
	UpdateModel(model string)
}

// GatewayFactory builds a gateway for a credential.
type GatewayFactory func(credential string) (Gateway, error)

// KVStore is the persistent key/value collaborator used for the credential.
// Get reports ok=false when the key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
