// Package config loads the panel configuration file and the provider secrets.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	orchestration "github.com/koscakluka/ema-panel/core"
	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/history"
	"github.com/koscakluka/ema-panel/core/texttospeech"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	configName = "panel"

	turnTakingMaxTurnDurationKey     = "turnTaking.maxTurnDuration"
	turnTakingMinTimeBetweenTurnsKey = "turnTaking.minTimeBetweenTurns"
	turnTakingMaxChainedTurnsKey     = "turnTaking.maxChainedTurns"
	historyMaxLengthKey              = "history.maxLength"
	historySystemTemplateKey         = "history.systemTemplate"
	audioBackendKey                  = "audio.backend"
	sttModelKey                      = "stt.model"
	sttLanguageKey                   = "stt.language"
	statsScheduleKey                 = "stats.schedule"

	DefaultStatsSchedule = "@every 5m"
)

const (
	EngineOpenAI     = "openai"
	EngineOpenRouter = "openrouter"
	EngineGroq       = "groq"
	EngineMistral    = "mistral"
	EngineOllama     = "ollama"
	EngineAnthropic  = "anthropic"

	EngineDeepgram   = "deepgram"
	EngineElevenLabs = "elevenlabs"

	BackendMiniaudio = "miniaudio"
	BackendPortaudio = "portaudio"
)

var (
	ErrUnknownLLMEngine    = errors.New("unknown language model engine")
	ErrUnknownTTSEngine    = errors.New("unknown text-to-speech engine")
	ErrUnknownAudioBackend = errors.New("unknown audio backend")
	ErrInvalidSchedule     = errors.New("invalid statistics schedule")
)

var (
	llmEngines    = []string{EngineOpenAI, EngineOpenRouter, EngineGroq, EngineMistral, EngineOllama, EngineAnthropic}
	ttsEngines    = []string{EngineDeepgram, EngineElevenLabs}
	audioBackends = []string{BackendMiniaudio, BackendPortaudio}
)

type Config struct {
	agents.RosterConfig `mapstructure:",squash"`

	TurnTaking TurnTakingConfig `mapstructure:"turnTaking"`
	History    HistoryConfig    `mapstructure:"history"`
	LLM        LLMConfig        `mapstructure:"llm"`
	TTS        TTSConfig        `mapstructure:"tts"`
	STT        STTConfig        `mapstructure:"stt"`
	Audio      AudioConfig      `mapstructure:"audio"`
	Stats      StatsConfig      `mapstructure:"stats"`

	// File is the configuration file that was read, empty when none was
	// found.
	File string `mapstructure:"-"`
}

type TurnTakingConfig struct {
	MaxTurnDuration     time.Duration `mapstructure:"maxTurnDuration"`
	MinTimeBetweenTurns time.Duration `mapstructure:"minTimeBetweenTurns"`
	MaxChainedTurns     int           `mapstructure:"maxChainedTurns"`
}

type HistoryConfig struct {
	MaxLength      int    `mapstructure:"maxLength"`
	SystemTemplate string `mapstructure:"systemTemplate"`
}

// LLMConfig lists the language model engines in the order they are tried.
type LLMConfig struct {
	Engines     []LLMEngineConfig `mapstructure:"engines"`
	MaxTokens   int               `mapstructure:"maxTokens"`
	Temperature float64           `mapstructure:"temperature"`
}

type LLMEngineConfig struct {
	Name    string `mapstructure:"name"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"baseURL"`
}

// TTSConfig lists the text-to-speech engines in the order they are tried.
// VoiceProfiles are keyed by agent id.
type TTSConfig struct {
	Engines       []TTSEngineConfig             `mapstructure:"engines"`
	VoiceProfiles map[string]VoiceProfileConfig `mapstructure:"voiceProfiles"`
}

type TTSEngineConfig struct {
	Name  string `mapstructure:"name"`
	Model string `mapstructure:"model"`
	Voice string `mapstructure:"voice"`
}

type VoiceProfileConfig struct {
	Voices                map[string]string `mapstructure:"voices"`
	PreferredEngine       string            `mapstructure:"preferredEngine"`
	InterjectionFrequency float64           `mapstructure:"interjectionFrequency"`
	Interjections         []string          `mapstructure:"interjections"`
	PauseFrequency        float64           `mapstructure:"pauseFrequency"`
	PauseDuration         time.Duration     `mapstructure:"pauseDuration"`
}

func (c VoiceProfileConfig) Profile() texttospeech.VoiceProfile {
	return texttospeech.VoiceProfile{
		Voices:                c.Voices,
		PreferredEngine:       strings.ToLower(c.PreferredEngine),
		InterjectionFrequency: c.InterjectionFrequency,
		Interjections:         c.Interjections,
		PauseFrequency:        c.PauseFrequency,
		PauseDuration:         c.PauseDuration,
	}
}

type STTConfig struct {
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type AudioConfig struct {
	Backend    string `mapstructure:"backend"`
	BufferSize int    `mapstructure:"bufferSize"`
}

type StatsConfig struct {
	// Schedule is a cron expression or descriptor such as "@every 1m". An
	// empty schedule only reports on shutdown.
	Schedule string `mapstructure:"schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(turnTakingMaxTurnDurationKey, orchestration.DefaultMaxTurnDuration)
	v.SetDefault(turnTakingMinTimeBetweenTurnsKey, orchestration.DefaultMinTimeBetweenTurns)
	v.SetDefault(turnTakingMaxChainedTurnsKey, 0)
	v.SetDefault(historyMaxLengthKey, history.DefaultMaxLength)
	v.SetDefault(historySystemTemplateKey, history.DefaultSystemTemplate)
	v.SetDefault(audioBackendKey, BackendMiniaudio)
	v.SetDefault(sttModelKey, "nova-3")
	v.SetDefault(sttLanguageKey, "en-US")
	v.SetDefault(statsScheduleKey, DefaultStatsSchedule)
}

// Load reads the panel configuration. With an empty path it looks for
// panel.{yaml,json,toml} in the working directory and ./config, and a
// missing file only leaves the defaults in place.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the engine names, the audio backend and the statistics
// schedule. Names are normalised to lower case.
func (c *Config) Validate() error {
	for i, engine := range c.LLM.Engines {
		name := strings.ToLower(strings.TrimSpace(engine.Name))
		if !slices.Contains(llmEngines, name) {
			return fmt.Errorf("%w %q, expected one of %s", ErrUnknownLLMEngine, engine.Name, strings.Join(llmEngines, ", "))
		}
		c.LLM.Engines[i].Name = name
	}

	for i, engine := range c.TTS.Engines {
		name := strings.ToLower(strings.TrimSpace(engine.Name))
		if !slices.Contains(ttsEngines, name) {
			return fmt.Errorf("%w %q, expected one of %s", ErrUnknownTTSEngine, engine.Name, strings.Join(ttsEngines, ", "))
		}
		c.TTS.Engines[i].Name = name
	}

	backend := strings.ToLower(strings.TrimSpace(c.Audio.Backend))
	if !slices.Contains(audioBackends, backend) {
		return fmt.Errorf("%w %q, expected one of %s", ErrUnknownAudioBackend, c.Audio.Backend, strings.Join(audioBackends, ", "))
	}
	c.Audio.Backend = backend

	if c.Stats.Schedule != "" {
		if _, err := cron.ParseStandard(c.Stats.Schedule); err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, c.Stats.Schedule, err)
		}
	}

	return nil
}

// Agents returns every configured agent in configuration order.
func (c Config) Agents() []agents.Agent {
	all := make([]agents.Agent, 0, len(c.RosterConfig.Agents))
	for _, agent := range c.RosterConfig.Agents {
		all = append(all, agent.Agent())
	}
	return all
}

// Roster builds the registry of the agents taking part. A nil active list
// falls back to the configured activeAgents. matched is false when the
// filter matched nobody and every agent was kept instead.
func (c Config) Roster(active []string) (registry *agents.Registry, matched bool, err error) {
	if active == nil && len(c.ActiveAgents) > 0 {
		active = c.ActiveAgents
	}

	filtered, matched := agents.Filter(c.Agents(), active)
	registry, err = agents.NewRegistry(filtered...)
	if err != nil {
		return nil, false, fmt.Errorf("build roster: %w", err)
	}
	return registry, matched, nil
}

func (c Config) TurnRules() orchestration.TurnRules {
	return orchestration.TurnRules{
		MaxTurnDuration:     c.TurnTaking.MaxTurnDuration,
		MinTimeBetweenTurns: c.TurnTaking.MinTimeBetweenTurns,
		MaxChainedTurns:     max(c.TurnTaking.MaxChainedTurns, 0),
	}
}

func (c Config) HistoryOptions() []history.Option {
	return []history.Option{
		history.WithMaxLength(c.History.MaxLength),
		history.WithSystemTemplate(c.History.SystemTemplate),
	}
}

// VoiceProfiles maps the configured profiles onto the agents of registry.
// Configuration keys are case-insensitive so profiles are matched to agent
// ids ignoring case.
func (c Config) VoiceProfiles(registry *agents.Registry) map[string]texttospeech.VoiceProfile {
	profiles := make(map[string]texttospeech.VoiceProfile, len(c.TTS.VoiceProfiles))
	for key, profile := range c.TTS.VoiceProfiles {
		for _, agent := range registry.All() {
			if strings.EqualFold(key, agent.ID) {
				profiles[agent.ID] = profile.Profile()
			}
		}
	}
	return profiles
}
