package llm

import (
	"log/slog"

	"github.com/pagesmith-dev/pagesmith/internal/models"
)

// Credentials is the process-wide provider configuration, read once at
// start-up and never re-evaluated mid-stream.
type Credentials struct {
	GroqAPIKey   string
	OpenAIAPIKey string
	OllamaHost   string
}

// Options carries per-provider model overrides and the system prompt. Zero
// values fall back to the defaults below.
type Options struct {
	GroqModel    string
	OpenAIModel  string
	OllamaModel  string
	SystemPrompt string
}

const (
	defaultGroqModel   = "llama-3.1-8b-instant"
	defaultOpenAIModel = "gpt-4o"
	defaultOllamaModel = "llama3.1"
)

// Select chooses the provider that answers a request, checking credential
// presence in fixed precedence order: Groq, then OpenAI, then a local Ollama
// host. The first configured backend wins and the choice holds for the whole
// stream. When nothing is configured it fails with NoProviderConfigured
// before any network call is attempted.
func Select(creds Credentials, opts Options, logger *slog.Logger) (Provider, error) {
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	switch {
	case creds.GroqAPIKey != "":
		model := opts.GroqModel
		if model == "" {
			model = defaultGroqModel
		}
		return NewGroq(creds.GroqAPIKey, model, systemPrompt, logger), nil
	case creds.OpenAIAPIKey != "":
		model := opts.OpenAIModel
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAI(creds.OpenAIAPIKey, model, systemPrompt, logger), nil
	case creds.OllamaHost != "":
		model := opts.OllamaModel
		if model == "" {
			model = defaultOllamaModel
		}
		return NewOllama(creds.OllamaHost, model, systemPrompt)
	}

	return nil, models.NewError(models.KindNoProviderConfigured,
		"no provider credentials configured")
}
