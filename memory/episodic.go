// Package memory implements the three memory tiers behind the chat loop:
// short-term conversation windows, rolling session and lifetime summaries,
// and episodic facts recalled by embedding similarity.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/recalld/llm"
	"github.com/aschepis/recalld/store"
)

const (
	defaultImportance = 0.5

	extractionSystemPromptFmt = `You extract durable facts about the user from a single chat message.

Output MUST be a valid JSON array with this exact shape and no extra keys:
[
  {"fact": string, "importance": number}
]

Requirements:
- Each "fact" is a short, self-contained, third-person statement about the user.
- "importance" is a number between 0.0 and 1.0.
- Extract at most %d facts, preferring the most important ones.
- Only include facts worth remembering across conversations: preferences,
  biographical details, goals, relationships, recurring habits.
- If the message contains nothing worth remembering, output [].

You must output ONLY the JSON array. Do not include explanations, comments, or surrounding text.`
)

// extractedFact mirrors the JSON shape the extraction model is asked for.
type extractedFact struct {
	Fact       string   `json:"fact"`
	Importance *float64 `json:"importance"`
}

// Retriever recalls stored fact texts relevant to a query, best match first.
type Retriever interface {
	RetrieveTopK(ctx context.Context, userID, query string, k int) ([]string, error)
}

// EpisodicEngine extracts facts from user utterances and recalls them by
// cosine similarity over stored embeddings.
type EpisodicEngine struct {
	store        *store.Store
	client       llm.Client
	embedder     llm.Embedder
	maxFacts     int
	systemPrompt string
	logger       zerolog.Logger
}

// NewEpisodicEngine constructs an EpisodicEngine. maxFacts caps how many
// facts a single utterance may yield.
func NewEpisodicEngine(st *store.Store, client llm.Client, embedder llm.Embedder, maxFacts int, logger zerolog.Logger) *EpisodicEngine {
	return &EpisodicEngine{
		store:        st,
		client:       client,
		embedder:     embedder,
		maxFacts:     maxFacts,
		systemPrompt: fmt.Sprintf(extractionSystemPromptFmt, maxFacts),
		logger:       logger.With().Str("component", "episodic").Logger(),
	}
}

// Extract asks the model for durable facts in the utterance, embeds each one,
// and persists them. Facts persisted before a failure stay persisted; the
// returned slice holds what was saved.
func (e *EpisodicEngine) Extract(ctx context.Context, userID string, sessionID *string, utterance string) ([]store.Episode, error) {
	req := &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: e.systemPrompt},
			{Role: llm.RoleUser, Content: utterance},
		},
		Temperature: lo.ToPtr(0.0),
	}
	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}

	facts, err := parseExtractedFacts(resp.Text)
	if err != nil {
		return nil, err
	}
	if len(facts) > e.maxFacts {
		facts = facts[:e.maxFacts]
	}

	var saved []store.Episode
	for _, f := range facts {
		embedding, err := e.embedder.Embed(ctx, f.Fact)
		if err != nil {
			return saved, fmt.Errorf("embed fact: %w", err)
		}
		ep, err := e.store.SaveEpisode(ctx, store.Episode{
			UserID:     userID,
			SessionID:  sessionID,
			Fact:       f.Fact,
			Importance: clampImportance(f.Importance),
			Embedding:  embedding,
		})
		if err != nil {
			return saved, fmt.Errorf("save episode: %w", err)
		}
		saved = append(saved, ep)
	}

	e.logger.Debug().
		Str("user_id", userID).
		Int("facts", len(saved)).
		Msg("Episodic extraction completed")
	return saved, nil
}

// parseExtractedFacts decodes the model output, tolerating markdown code
// fences around the JSON array. Only a response that is not a JSON array at
// all is an error; individual entries that are not well-formed fact objects
// are discarded so their valid siblings survive.
func parseExtractedFacts(text string) ([]extractedFact, error) {
	cleaned := stripCodeFences(text)
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, llm.NewMalformedOutputError("parse extracted facts: %v", err)
	}

	var facts []extractedFact
	for _, entry := range entries {
		var f extractedFact
		if err := json.Unmarshal(entry, &f); err != nil {
			continue
		}
		if strings.TrimSpace(f.Fact) == "" {
			continue
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

func clampImportance(v *float64) float64 {
	if v == nil {
		return defaultImportance
	}
	switch {
	case *v < 0:
		return 0
	case *v > 1:
		return 1
	default:
		return *v
	}
}

// scoredEpisode pairs an episode with its similarity to the query.
type scoredEpisode struct {
	episode store.Episode
	score   float64
}

// RetrieveTopK embeds the query and returns the facts of the user's k most
// similar episodes, best first. Episodes whose stored embedding dimension
// does not match the query are skipped.
func (e *EpisodicEngine) RetrieveTopK(ctx context.Context, userID, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}

	queryEmbedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	episodes, err := e.store.EpisodesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var scored []scoredEpisode
	for _, ep := range episodes {
		if len(ep.Embedding) != len(queryEmbedding) {
			e.logger.Warn().
				Int64("episode_id", ep.ID).
				Int("stored_dim", len(ep.Embedding)).
				Int("query_dim", len(queryEmbedding)).
				Msg("Skipping episode with mismatched embedding dimension")
			continue
		}
		scored = append(scored, scoredEpisode{
			episode: ep,
			score:   CosineSimilarity(queryEmbedding, ep.Embedding),
		})
	}

	// Stable keeps insertion order among ties so recall is deterministic.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	return lo.Map(scored, func(s scoredEpisode, _ int) string {
		return s.episode.Fact
	}), nil
}

// RetrieveRecent returns the user's n most recent fact texts, newest-first.
func (e *EpisodicEngine) RetrieveRecent(ctx context.Context, userID string, n int) ([]string, error) {
	return e.store.LastNEpisodicFacts(ctx, userID, n)
}
