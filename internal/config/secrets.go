package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Secrets are the provider credentials. They only ever come from the
// environment, never from the panel configuration file.
type Secrets struct {
	DeepgramAPIKey   string `env:"DEEPGRAM_API_KEY"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`

	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	GroqAPIKey       string `env:"GROQ_API_KEY"`
	MistralAPIKey    string `env:"MISTRAL_API_KEY"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`

	OllamaBaseURL string `env:"OLLAMA_BASE_URL"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE" envDefault:"ema-panel"`
}

// LoadSecrets loads envFiles into the environment, skipping the ones that do
// not exist, and parses the secrets. Variables already set win over the
// files.
func LoadSecrets(envFiles ...string) (Secrets, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("load env file %q: %w", file, err)
		}
	}

	secrets := Secrets{}
	if err := env.Parse(&secrets); err != nil {
		return Secrets{}, fmt.Errorf("parse secrets: %w", err)
	}
	return secrets, nil
}
