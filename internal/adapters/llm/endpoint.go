package llm

import "strings"

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-3.5-turbo"

	openRouterPrefix  = "sk-or-"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterModel   = "openai/gpt-3.5-turbo"
	openRouterTitle   = "AI TRPG Tavern"
)

// Endpoint is where completions go and which model answers them.
type Endpoint struct {
	BaseURL string
	Model   string
	Headers map[string]string
}

// DeriveEndpoint picks the provider from the shape of the credential. OpenRouter
// keys get the OpenRouter base URL and its attribution headers; anything else
// goes to OpenAI.
func DeriveEndpoint(credential, origin string) Endpoint {
	if strings.HasPrefix(strings.TrimSpace(credential), openRouterPrefix) {
		return Endpoint{
			BaseURL: openRouterBaseURL,
			Model:   openRouterModel,
			Headers: map[string]string{
				"HTTP-Referer": origin,
				"X-Title":      openRouterTitle,
			},
		}
	}
	return Endpoint{
		BaseURL: defaultBaseURL,
		Model:   defaultModel,
	}
}
