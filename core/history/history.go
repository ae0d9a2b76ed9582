// Package history keeps the shared panel conversation and turns it into
// prompts for the agents.
package history

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/llms"
)

const (
	DefaultMaxLength      = 10
	DefaultSystemTemplate = "You are {{.Name}}, {{.Role}}."

	AudienceDisplayName = "Audience Member"
)

type Entry struct {
	SpeakerID  string
	Speaker    string
	Text       string
	IsAudience bool
	Timestamp  time.Time
}

// Conversation is the history every agent sees. Only the most recent
// maxLength entries are kept.
type Conversation struct {
	mu       sync.RWMutex
	entries  []Entry
	registry *agents.Registry

	maxLength int
	system    *template.Template
	now       func() time.Time
}

type options struct {
	maxLength      int
	systemTemplate string
	now            func() time.Time
}

type Option func(*options)

func WithMaxLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLength = n
		}
	}
}

// WithSystemTemplate sets the persona template. It is a text/template
// executed with the agent; {name} style placeholders are accepted too.
func WithSystemTemplate(tmpl string) Option {
	return func(o *options) {
		if strings.TrimSpace(tmpl) != "" {
			o.systemTemplate = tmpl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func New(registry *agents.Registry, opts ...Option) (*Conversation, error) {
	o := options{
		maxLength:      DefaultMaxLength,
		systemTemplate: DefaultSystemTemplate,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	system, err := template.New("system").Option("missingkey=zero").Parse(convertPlaceholders(o.systemTemplate))
	if err != nil {
		return nil, fmt.Errorf("failed to parse system prompt template: %w", err)
	}

	return &Conversation{
		registry:  registry,
		maxLength: o.maxLength,
		system:    system,
		now:       o.now,
	}, nil
}

// Record appends an utterance. Audience speech is attributed to
// [AudienceDisplayName], agents by their name.
func (c *Conversation) Record(speakerID, text string, isAudience bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	speaker := speakerID
	if isAudience {
		speaker = AudienceDisplayName
	} else if agent, ok := c.registry.Agent(speakerID); ok {
		speaker = agent.DisplayName()
	}

	c.entries = append(c.entries, Entry{
		SpeakerID:  speakerID,
		Speaker:    speaker,
		Text:       text,
		IsAudience: isAudience,
		Timestamp:  c.now(),
	})
	if overflow := len(c.entries) - c.maxLength; overflow > 0 {
		c.entries = append([]Entry(nil), c.entries[overflow:]...)
	}
}

func (c *Conversation) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]Entry(nil), c.entries...)
}

func (c *Conversation) SetRegistry(registry *agents.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry = registry
}

func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
}

// Prompt builds agentID's prompt to continue the conversation.
func (c *Conversation) Prompt(agentID string) (llms.Prompt, error) {
	return c.PromptFor(agentID, "")
}

// PromptFor builds agentID's prompt to respond to request. An empty request
// asks the agent to continue the conversation.
func (c *Conversation) PromptFor(agentID, request string) (llms.Prompt, error) {
	c.mu.RLock()
	agent, ok := c.registry.Agent(agentID)
	entries := append([]Entry(nil), c.entries...)
	c.mu.RUnlock()

	if !ok {
		return llms.Prompt{}, fmt.Errorf("failed to build prompt: unknown agent %q", agentID)
	}

	var system bytes.Buffer
	if err := c.system.Execute(&system, agent); err != nil {
		return llms.Prompt{}, fmt.Errorf("failed to build system prompt for %q: %w", agentID, err)
	}

	user := historyPrompt(entries)
	if request != "" {
		user += "\n\nPlease respond to: " + request
	} else {
		user += "\n\nPlease continue the conversation as " + agent.DisplayName() + "."
	}

	return llms.Prompt{System: system.String(), User: user}, nil
}

func historyPrompt(entries []Entry) string {
	if len(entries) == 0 {
		return "This is the start of a conversation."
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "Conversation history:")
	for _, entry := range entries {
		lines = append(lines, entry.Speaker+": "+entry.Text)
	}
	return strings.Join(lines, "\n")
}

var placeholders = strings.NewReplacer(
	"{name}", "{{.Name}}",
	"{role}", "{{.Role}}",
	"{background}", "{{.Background}}",
	"{personality}", "{{.Personality}}",
	"{expertise}", "{{.Expertise}}",
	"{speaking_style}", "{{.SpeakingStyle}}",
)

func convertPlaceholders(tmpl string) string {
	return placeholders.Replace(tmpl)
}
