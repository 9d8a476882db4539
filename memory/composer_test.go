package memory

import (
	"strings"
	"testing"

	"github.com/aschepis/recalld/llm"
	"github.com/aschepis/recalld/store"
)

func TestComposeMinimal(t *testing.T) {
	messages := Compose(PromptInputs{UserMessage: "hello"})
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != llm.RoleSystem || messages[0].Content != DefaultPrimer {
		t.Errorf("expected default primer first, got %+v", messages[0])
	}
	if messages[1].Role != llm.RoleUser || messages[1].Content != "hello" {
		t.Errorf("expected user message last, got %+v", messages[1])
	}
}

func TestComposeFullOrdering(t *testing.T) {
	messages := Compose(PromptInputs{
		Primer:         "primer",
		LifetimeText:   "profile",
		SessionSummary: "so far",
		Facts:          []string{"likes tea", "lives in Lisbon"},
		History: []store.Message{
			{Role: store.RoleAssistant, Content: "older reply"},
			{Role: store.RoleUser, Content: "older question"},
		},
		UserMessage: "current",
	})

	wantContents := []string{
		"primer",
		"Long-term user profile: profile",
		"Summary of the conversation so far: so far",
		"Relevant facts about the user: likes tea; lives in Lisbon",
		"older question",
		"older reply",
		"current",
	}
	if len(messages) != len(wantContents) {
		t.Fatalf("expected %d messages, got %d", len(wantContents), len(messages))
	}
	for i, want := range wantContents {
		if messages[i].Content != want {
			t.Errorf("message %d = %q, want %q", i, messages[i].Content, want)
		}
	}

	// History is chronological with roles preserved.
	if messages[4].Role != llm.RoleUser || messages[5].Role != llm.RoleAssistant {
		t.Errorf("history roles wrong: %v, %v", messages[4].Role, messages[5].Role)
	}
	if messages[6].Role != llm.RoleUser {
		t.Errorf("current message role = %v, want user", messages[6].Role)
	}
}

func TestComposeOmitsEmptyTiers(t *testing.T) {
	messages := Compose(PromptInputs{
		SessionSummary: "only this",
		UserMessage:    "hi",
	})
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for _, m := range messages {
		if strings.Contains(m.Content, "Long-term user profile") || strings.Contains(m.Content, "Relevant facts") {
			t.Errorf("empty tier leaked into prompt: %q", m.Content)
		}
	}
}
