package generation

import (
	"fmt"

	"github.com/fyrsmithlabs/codefixd/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewModel connects to the configured generation runtime. Neither backend
// dials at construction; the first Generate reaches the server.
func NewModel(cfg config.ModelConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "ollama", "":
		opts := []ollama.Option{
			ollama.WithModel(cfg.Name),
			ollama.WithServerURL(cfg.BaseURL),
		}
		if cfg.Device == "cpu" {
			opts = append(opts, ollama.WithRunnerNumGPU(0))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		return llm, nil

	case "openai":
		// langchaingo requires a token; local OpenAI-compatible servers ignore it.
		token := cfg.APIKey.Value()
		if token == "" {
			token = "placeholder"
		}
		llm, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithModel(cfg.Name),
			openai.WithToken(token),
		)
		if err != nil {
			return nil, fmt.Errorf("creating OpenAI client: %w", err)
		}
		return llm, nil

	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
