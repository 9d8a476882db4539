package memory

import (
	"strings"

	"github.com/aschepis/recalld/llm"
	"github.com/aschepis/recalld/store"
)

// DefaultPrimer opens every composed prompt.
const DefaultPrimer = "You are a helpful assistant with memory of past conversations. " +
	"Use the provided context naturally without mentioning that it was retrieved."

// PromptInputs carries everything the composer folds into a completion
// request. History is newest-first, as the store returns it.
type PromptInputs struct {
	Primer         string
	LifetimeText   string
	SessionSummary string
	Facts          []string
	History        []store.Message
	UserMessage    string
}

// Compose assembles the completion messages in fixed order: primer, lifetime
// profile, session summary, episodic facts, chronological history, then the
// current user message. Empty tiers are omitted entirely.
func Compose(in PromptInputs) []llm.Message {
	primer := in.Primer
	if primer == "" {
		primer = DefaultPrimer
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: primer}}

	if in.LifetimeText != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Long-term user profile: " + in.LifetimeText,
		})
	}
	if in.SessionSummary != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Summary of the conversation so far: " + in.SessionSummary,
		})
	}
	if len(in.Facts) > 0 {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Relevant facts about the user: " + strings.Join(in.Facts, "; "),
		})
	}

	for i := len(in.History) - 1; i >= 0; i-- {
		m := in.History[i]
		messages = append(messages, llm.Message{
			Role:    roleToLLM(m.Role),
			Content: m.Content,
		})
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: in.UserMessage})
}

func roleToLLM(r store.Role) llm.MessageRole {
	if r == store.RoleAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}
