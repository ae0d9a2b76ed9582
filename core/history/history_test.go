package history

import (
	"fmt"
	"strings"
	"testing"

	"github.com/koscakluka/ema-panel/core/agents"
)

func panel() *agents.Registry {
	return agents.MustNewRegistry(
		agents.Agent{ID: "alex", Name: "Alex", Role: "an AI researcher", SpeakingStyle: "concise"},
		agents.Agent{ID: "jordan", Name: "Jordan", Role: "a founder"},
	)
}

func TestPromptAtStartOfConversation(t *testing.T) {
	conversation, err := New(panel())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	prompt, err := conversation.Prompt("alex")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if prompt.System != "You are Alex, an AI researcher." {
		t.Fatalf("unexpected system prompt %q", prompt.System)
	}
	expected := "This is the start of a conversation.\n\nPlease continue the conversation as Alex."
	if prompt.User != expected {
		t.Fatalf("expected user prompt %q, got %q", expected, prompt.User)
	}
}

func TestPromptIncludesAttributedHistory(t *testing.T) {
	conversation, _ := New(panel())
	conversation.Record("", "What does Jordan think about AI?", true)
	conversation.Record("jordan", "I think it is a business opportunity.", false)
	conversation.Record("guest", "Interesting.", false)

	prompt, err := conversation.PromptFor("alex", "Do you agree?")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := strings.Join([]string{
		"Conversation history:",
		"Audience Member: What does Jordan think about AI?",
		"Jordan: I think it is a business opportunity.",
		"guest: Interesting.",
		"",
		"Please respond to: Do you agree?",
	}, "\n")
	if prompt.User != expected {
		t.Fatalf("expected user prompt\n%s\ngot\n%s", expected, prompt.User)
	}
}

func TestRecordTrimsToMaxLength(t *testing.T) {
	conversation, _ := New(panel(), WithMaxLength(3))
	for i := range 5 {
		conversation.Record("alex", fmt.Sprintf("message %d", i), false)
	}
	conversation.Record("alex", "   ", false)

	entries := conversation.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Text != "message 2" || entries[2].Text != "message 4" {
		t.Fatalf("expected the most recent entries to be kept, got %+v", entries)
	}
}

func TestSystemTemplateAcceptsBracePlaceholders(t *testing.T) {
	conversation, err := New(panel(), WithSystemTemplate("You are {name}, {role}. Style: {speaking_style}."))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	prompt, _ := conversation.Prompt("alex")
	if prompt.System != "You are Alex, an AI researcher. Style: concise." {
		t.Fatalf("unexpected system prompt %q", prompt.System)
	}
}

func TestInvalidTemplateFails(t *testing.T) {
	if _, err := New(panel(), WithSystemTemplate("You are {{.Name")); err == nil {
		t.Fatalf("expected template parse error")
	}
}

func TestPromptForUnknownAgentFails(t *testing.T) {
	conversation, _ := New(panel())
	if _, err := conversation.Prompt("sam"); err == nil {
		t.Fatalf("expected error for unknown agent")
	}
}

func TestResetClearsEntries(t *testing.T) {
	conversation, _ := New(panel())
	conversation.Record("alex", "hello", false)
	conversation.Reset()

	if len(conversation.Entries()) != 0 {
		t.Fatalf("expected no entries after reset")
	}
}
