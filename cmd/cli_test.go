package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rosterYAML = `
agents:
  - id: alex
    name: Alex
    role: AI researcher
    keywords: [AI, "!breaking"]
  - id: jordan
    name: Jordan
    role: founder
    keywords: [business]
`

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	// Keep the working directory free of panel files and .env.
	t.Chdir(t.TempDir())

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	rootCmd := newRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writePanelConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "panel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSchemaPrintsRosterSchema(t *testing.T) {
	stdout, _, err := executeCLI(t, "schema")
	require.NoError(t, err)

	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"activeAgents\"")
	assert.Contains(t, stdout, "\"keywords\"")
}

func TestAgentsListsRoster(t *testing.T) {
	stdout, _, err := executeCLI(t, "agents", "--config", writePanelConfig(t, rosterYAML))
	require.NoError(t, err)

	assert.Contains(t, stdout, "Alex (alex) - AI researcher")
	assert.Contains(t, stdout, "keywords: AI, !breaking")
	assert.Contains(t, stdout, "Jordan (jordan) - founder")
}

func TestAgentsHonoursAgentFlag(t *testing.T) {
	stdout, stderr, err := executeCLI(t, "agents", "--config", writePanelConfig(t, rosterYAML), "--agent", "jordan")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Jordan (jordan)")
	assert.NotContains(t, stdout, "Alex")
	assert.Empty(t, stderr)
}

func TestAgentsWarnsWhenFilterMatchesNobody(t *testing.T) {
	stdout, stderr, err := executeCLI(t, "agents", "--config", writePanelConfig(t, rosterYAML), "--agents", "sam,kim")
	require.NoError(t, err)

	assert.Contains(t, stderr, "matched no agents, using all 2 agents")
	assert.Contains(t, stdout, "Alex (alex)")
	assert.Contains(t, stdout, "Jordan (jordan)")
}

func TestAllAgentsOverridesConfiguredActiveAgents(t *testing.T) {
	config := writePanelConfig(t, rosterYAML+"activeAgents: [alex]\n")

	stdout, _, err := executeCLI(t, "agents", "--config", config)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Jordan")

	stdout, _, err = executeCLI(t, "agents", "--config", config, "--all-agents")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Jordan (jordan)")
}

func TestAgentFlagsAreMutuallyExclusive(t *testing.T) {
	_, _, err := executeCLI(t, "agents", "--config", writePanelConfig(t, rosterYAML), "--agent", "alex", "--all-agents")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestAgentsWithoutConfiguredAgentsFails(t *testing.T) {
	_, _, err := executeCLI(t, "agents")
	require.ErrorIs(t, err, errNoAgents)
}

func newChatServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}

		content := "Hello, I am on the panel."
		if bytes.Contains(body, []byte("introduce yourself")) {
			content = "Hi, let me introduce myself."
		}
		_, _ = fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","created":0,"model":"test-model",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`, content)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestTestAgentsIntroducesEveryAgent(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	server, calls := newChatServer(t, http.StatusOK)
	config := writePanelConfig(t, rosterYAML+fmt.Sprintf("llm:\n  engines:\n    - name: openai\n      model: test-model\n      baseURL: %s\n", server.URL))

	stdout, _, err := executeCLI(t, "test-agents", "--config", config)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Language models: openai")
	assert.Contains(t, stdout, "Testing agent: Alex (alex)")
	assert.Contains(t, stdout, "Testing agent: Jordan (jordan)")
	assert.Equal(t, 2, strings.Count(stdout, "Response: Hi, let me introduce myself."))
	assert.Equal(t, int32(2), calls.Load())
}

func TestTestAgentsReportsFailures(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	server, _ := newChatServer(t, http.StatusInternalServerError)
	config := writePanelConfig(t, rosterYAML+fmt.Sprintf("llm:\n  engines:\n    - name: openai\n      baseURL: %s\n", server.URL))

	stdout, _, err := executeCLI(t, "test-agents", "--config", config, "--agent", "alex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 agents failed")
	assert.Contains(t, stdout, "Failed (generation)")
}

func TestIntroductionPromptsAskForIntroduction(t *testing.T) {
	registry := agents.MustNewRegistry(agents.Agent{ID: "alex", Name: "Alex", Role: "AI researcher"})
	conversation, err := history.New(registry)
	require.NoError(t, err)

	prompt, err := introductionPrompts{history: conversation}.Prompt("alex")
	require.NoError(t, err)
	assert.Equal(t, "You are Alex, AI researcher.", prompt.System)
	assert.True(t, strings.HasSuffix(prompt.User, "Please respond to: "+introductionRequest))
}

func TestActiveAgents(t *testing.T) {
	assert.Nil(t, rootOptions{}.activeAgents())
	assert.Equal(t, []string{"alex"}, rootOptions{agent: "alex", agents: []string{"jordan"}}.activeAgents())
	assert.Equal(t, []string{"alex", "jordan"}, rootOptions{agents: []string{"alex", "jordan"}}.activeAgents())
}

func TestStatsReporterRejectsInvalidSchedule(t *testing.T) {
	_, err := startStatsReporter("not a schedule", func() {})
	require.Error(t, err)

	reporter, err := startStatsReporter("", func() { t.Fatalf("expected no report without a schedule") })
	require.NoError(t, err)
	reporter.Stop()
}
