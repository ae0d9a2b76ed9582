package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/audio"
	"github.com/koscakluka/ema-panel/core/audio/miniaudio"
	"github.com/koscakluka/ema-panel/core/audio/portaudio"
	"github.com/koscakluka/ema-panel/core/history"
	"github.com/koscakluka/ema-panel/core/llms"
	anthropicllm "github.com/koscakluka/ema-panel/core/llms/anthropic"
	openaillm "github.com/koscakluka/ema-panel/core/llms/openai"
	sttdeepgram "github.com/koscakluka/ema-panel/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-panel/core/texttospeech"
	ttsdeepgram "github.com/koscakluka/ema-panel/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-panel/core/texttospeech/elevenlabs"
	"github.com/koscakluka/ema-panel/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errNoAgents = errors.New("no agents configured")

var defaultModels = map[string]string{
	config.EngineOpenAI:     "gpt-4o-mini",
	config.EngineOpenRouter: "anthropic/claude-3-opus:beta",
	config.EngineGroq:       "llama-3.1-8b-instant",
	config.EngineMistral:    "mistral-medium",
	config.EngineOllama:     "mistral:7b-instruct-v0.2",
}

type app struct {
	cfg      *config.Config
	secrets  config.Secrets
	registry *agents.Registry
	history  *history.Conversation
	llm      *llms.Chain
}

func wireApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(viper.New(), opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	secrets, err := config.LoadSecrets(opts.envFile)
	if err != nil {
		return nil, err
	}

	registry, err := loadRoster(cmd, cfg, opts)
	if err != nil {
		return nil, err
	}

	conversation, err := history.New(registry, cfg.HistoryOptions()...)
	if err != nil {
		return nil, fmt.Errorf("wire conversation history: %w", err)
	}

	llm, err := newLLMChain(cfg, secrets)
	if err != nil {
		return nil, fmt.Errorf("wire language models: %w", err)
	}

	return &app{
		cfg:      cfg,
		secrets:  secrets,
		registry: registry,
		history:  conversation,
		llm:      llm,
	}, nil
}

func loadRoster(cmd *cobra.Command, cfg *config.Config, opts *rootOptions) (*agents.Registry, error) {
	if len(cfg.Agents()) == 0 {
		return nil, errNoAgents
	}

	if opts.allAgents {
		registry, err := agents.NewRegistry(cfg.Agents()...)
		if err != nil {
			return nil, fmt.Errorf("build roster: %w", err)
		}
		return registry, nil
	}

	registry, matched, err := cfg.Roster(opts.activeAgents())
	if err != nil {
		return nil, err
	}
	if !matched {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: agent filter matched no agents, using all %d agents\n", registry.Len())
	}
	return registry, nil
}

func newLLMChain(cfg *config.Config, secrets config.Secrets) (*llms.Chain, error) {
	engines := cfg.LLM.Engines
	if len(engines) == 0 {
		engines = []config.LLMEngineConfig{{Name: config.EngineOpenAI}}
	}

	var clientOpts []openaillm.ClientOption
	if cfg.LLM.MaxTokens > 0 {
		clientOpts = append(clientOpts, openaillm.WithMaxTokens(cfg.LLM.MaxTokens))
	}
	if cfg.LLM.Temperature > 0 {
		clientOpts = append(clientOpts, openaillm.WithTemperature(float32(cfg.LLM.Temperature)))
	}

	providers := make([]llms.Provider, 0, len(engines))
	for _, engine := range engines {
		model := engine.Model
		if model == "" {
			model = defaultModels[engine.Name]
		}
		opts := clientOpts
		if engine.BaseURL != "" && engine.Name != config.EngineOllama {
			opts = append(append([]openaillm.ClientOption(nil), clientOpts...), openaillm.WithBaseURL(engine.BaseURL))
		}

		switch engine.Name {
		case config.EngineOpenAI:
			providers = append(providers, openaillm.NewClient(secrets.OpenAIAPIKey, model, opts...))
		case config.EngineOpenRouter:
			providers = append(providers, openaillm.NewOpenRouter(secrets.OpenRouterAPIKey, model, secrets.OpenRouterReferrer, secrets.OpenRouterTitle, opts...))
		case config.EngineGroq:
			providers = append(providers, openaillm.NewGroq(secrets.GroqAPIKey, model, opts...))
		case config.EngineMistral:
			providers = append(providers, openaillm.NewMistral(secrets.MistralAPIKey, model, opts...))
		case config.EngineOllama:
			providers = append(providers, openaillm.NewOllama(firstNonEmpty(engine.BaseURL, secrets.OllamaBaseURL), model, opts...))
		case config.EngineAnthropic:
			providers = append(providers, anthropicllm.NewClient(func(o *anthropicllm.Options) {
				o.APIKey = secrets.AnthropicAPIKey
				o.BaseURL = engine.BaseURL
				if model != "" {
					o.Model = anthropicsdk.Model(model)
				}
				if cfg.LLM.MaxTokens > 0 {
					o.MaxTokens = int64(cfg.LLM.MaxTokens)
				}
				if cfg.LLM.Temperature > 0 {
					o.Temperature = cfg.LLM.Temperature
				}
			}))
		default:
			return nil, fmt.Errorf("%w %q", config.ErrUnknownLLMEngine, engine.Name)
		}
	}

	return llms.NewChain(providers...), nil
}

func newSpeechChain(cfg *config.Config, secrets config.Secrets, registry *agents.Registry, encoding audio.EncodingInfo) (*texttospeech.Chain, error) {
	engines := cfg.TTS.Engines
	if len(engines) == 0 {
		engines = []config.TTSEngineConfig{{Name: config.EngineDeepgram}}
	}

	synthesizers := make([]texttospeech.Synthesizer, 0, len(engines))
	for _, engine := range engines {
		switch engine.Name {
		case config.EngineDeepgram:
			client, err := ttsdeepgram.NewTextToSpeechClient(secrets.DeepgramAPIKey,
				ttsdeepgram.WithVoice(engine.Voice),
				ttsdeepgram.WithEncodingInfo(encoding),
			)
			if err != nil {
				return nil, fmt.Errorf("wire deepgram speech: %w", err)
			}
			synthesizers = append(synthesizers, client)
		case config.EngineElevenLabs:
			client, err := elevenlabs.NewTextToSpeechClient(secrets.ElevenLabsAPIKey,
				elevenlabs.WithModel(engine.Model),
				elevenlabs.WithVoice(engine.Voice),
				elevenlabs.WithEncodingInfo(encoding),
			)
			if err != nil {
				return nil, fmt.Errorf("wire elevenlabs speech: %w", err)
			}
			synthesizers = append(synthesizers, client)
		default:
			return nil, fmt.Errorf("%w %q", config.ErrUnknownTTSEngine, engine.Name)
		}
	}

	return texttospeech.NewChain(synthesizers, texttospeech.WithProfiles(cfg.VoiceProfiles(registry))), nil
}

func newTranscriptionClient(cfg *config.Config, secrets config.Secrets) *sttdeepgram.TranscriptionClient {
	return sttdeepgram.NewTranscriptionClient(secrets.DeepgramAPIKey,
		sttdeepgram.WithModel(cfg.STT.Model),
		sttdeepgram.WithLanguage(cfg.STT.Language),
	)
}

// audioDevice captures the audience and plays the agents on the same
// device.
type audioDevice interface {
	EncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	Play(ctx context.Context, clip audio.Clip) error
	Close()
}

func openAudio(cfg *config.Config) (audioDevice, error) {
	switch cfg.Audio.Backend {
	case config.BackendPortaudio:
		client, err := portaudio.NewClient(cfg.Audio.BufferSize)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.BackendMiniaudio, "":
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownAudioBackend, cfg.Audio.Backend)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
