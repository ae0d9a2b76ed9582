package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	orchestration "github.com/koscakluka/ema-panel/core"
	"github.com/koscakluka/ema-panel/core/history"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const panelYAML = `
agents:
  - id: alex
    name: Alex
    role: AI researcher
    keywords: [AI, "!breaking"]
  - id: Jordan
    name: Jordan
    role: founder
    keywords: [business]
activeAgents: [alex]
turnTaking:
  maxTurnDuration: 20s
  minTimeBetweenTurns: 500ms
  maxChainedTurns: 3
history:
  maxLength: 4
  systemTemplate: "You are {name}."
llm:
  maxTokens: 300
  engines:
    - name: Groq
      model: llama-3.1-8b-instant
    - name: anthropic
      model: claude-3-5-haiku-latest
tts:
  engines:
    - name: deepgram
    - name: elevenlabs
      model: eleven_flash_v2_5
  voiceProfiles:
    jordan:
      preferredEngine: ElevenLabs
      voices:
        deepgram: aura-orion-en
        elevenlabs: voice-123
      interjectionFrequency: 0.2
      interjections: [well, hmm]
      pauseFrequency: 0.5
      pauseDuration: 300ms
audio:
  backend: PortAudio
stats:
  schedule: "@every 1m"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadReadsPanelFile(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, "panel.yaml", panelYAML))
	require.NoError(t, err)

	require.Len(t, cfg.RosterConfig.Agents, 2)
	assert.Equal(t, "alex", cfg.RosterConfig.Agents[0].ID)
	assert.Equal(t, []string{"AI", "!breaking"}, cfg.RosterConfig.Agents[0].Keywords)
	assert.Equal(t, []string{"alex"}, cfg.ActiveAgents)

	assert.Equal(t, orchestration.TurnRules{
		MaxTurnDuration:     20 * time.Second,
		MinTimeBetweenTurns: 500 * time.Millisecond,
		MaxChainedTurns:     3,
	}, cfg.TurnRules())
	assert.Equal(t, HistoryConfig{MaxLength: 4, SystemTemplate: "You are {name}."}, cfg.History)

	require.Len(t, cfg.LLM.Engines, 2)
	assert.Equal(t, EngineGroq, cfg.LLM.Engines[0].Name)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Engines[0].Model)
	assert.Equal(t, 300, cfg.LLM.MaxTokens)

	require.Len(t, cfg.TTS.Engines, 2)
	assert.Equal(t, EngineElevenLabs, cfg.TTS.Engines[1].Name)
	assert.Equal(t, BackendPortaudio, cfg.Audio.Backend)
	assert.Equal(t, "@every 1m", cfg.Stats.Schedule)
	assert.NotEmpty(t, cfg.File)
}

func TestLoadAcceptsJSON(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, "panel.json", `{
		"agents": [{"id": "sam", "name": "Sam", "keywords": ["!urgent"]}],
		"turnTaking": {"maxChainedTurns": 1}
	}`))
	require.NoError(t, err)

	require.Len(t, cfg.Agents(), 1)
	agent := cfg.Agents()[0]
	assert.Equal(t, "sam", agent.ID)
	require.Len(t, agent.UrgentKeywords(), 1)
	assert.Equal(t, "urgent", agent.UrgentKeywords()[0].Text)
	assert.Equal(t, 1, cfg.TurnTaking.MaxChainedTurns)
	assert.Equal(t, orchestration.DefaultMaxTurnDuration, cfg.TurnTaking.MaxTurnDuration)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Empty(t, cfg.Agents())
	assert.Equal(t, orchestration.DefaultTurnRules(), cfg.TurnRules())
	assert.Equal(t, history.DefaultMaxLength, cfg.History.MaxLength)
	assert.Equal(t, BackendMiniaudio, cfg.Audio.Backend)
	assert.Equal(t, DefaultStatsSchedule, cfg.Stats.Schedule)
	assert.Equal(t, "nova-3", cfg.STT.Model)
}

func TestLoadFailsForMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name     string
		content  string
		expected error
	}{
		{name: "llm engine", content: "llm:\n  engines:\n    - name: skynet\n", expected: ErrUnknownLLMEngine},
		{name: "tts engine", content: "tts:\n  engines:\n    - name: chattts\n", expected: ErrUnknownTTSEngine},
		{name: "audio backend", content: "audio:\n  backend: pulse\n", expected: ErrUnknownAudioBackend},
		{name: "schedule", content: "stats:\n  schedule: every now and then\n", expected: ErrInvalidSchedule},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, "panel.yaml", testCase.content))
			require.ErrorIs(t, err, testCase.expected)
		})
	}
}

func TestRosterFiltersActiveAgents(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, "panel.yaml", panelYAML))
	require.NoError(t, err)

	registry, matched, err := cfg.Roster(nil)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, []string{"alex"}, registry.IDs())

	registry, matched, err = cfg.Roster([]string{"Jordan"})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, []string{"Jordan"}, registry.IDs())

	registry, matched, err = cfg.Roster([]string{"nobody"})
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, []string{"alex", "Jordan"}, registry.IDs())
}

func TestRosterRejectsDuplicateAgents(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, "panel.yaml", "agents:\n  - id: a\n  - id: a\n"))
	require.NoError(t, err)

	_, _, err = cfg.Roster(nil)
	require.Error(t, err)
}

func TestVoiceProfilesMatchAgentIDsIgnoringCase(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, "panel.yaml", panelYAML))
	require.NoError(t, err)

	registry, _, err := cfg.Roster([]string{"alex", "Jordan"})
	require.NoError(t, err)

	profiles := cfg.VoiceProfiles(registry)
	require.Contains(t, profiles, "Jordan")
	profile := profiles["Jordan"]
	assert.Equal(t, EngineElevenLabs, profile.PreferredEngine)
	assert.Equal(t, "voice-123", profile.Voice(EngineElevenLabs))
	assert.Equal(t, []string{"well", "hmm"}, profile.Interjections)
	assert.Equal(t, 300*time.Millisecond, profile.PauseDuration)
	assert.InDelta(t, 0.2, profile.InterjectionFrequency, 1e-9)
	assert.NotContains(t, profiles, "alex")
}

func TestLoadSecretsPrefersEnvironmentOverFile(t *testing.T) {
	// Reset both keys so godotenv's writes are undone after the test.
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("ELEVENLABS_API_KEY", "")
	require.NoError(t, os.Unsetenv("ELEVENLABS_API_KEY"))

	envFile := writeConfig(t, ".env", "OPENAI_API_KEY=from-file\nELEVENLABS_API_KEY=eleven-from-file\n")
	secrets, err := LoadSecrets(envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", secrets.OpenAIAPIKey)
	assert.Equal(t, "eleven-from-file", secrets.ElevenLabsAPIKey)
	assert.Equal(t, "ema-panel", secrets.OpenRouterTitle)
}
