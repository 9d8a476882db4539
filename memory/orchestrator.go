package memory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aschepis/recalld/llm"
	"github.com/aschepis/recalld/store"
)

// Options tunes the memory pipeline.
type Options struct {
	ShortTermWindow        int
	SummarizeEveryUserMsgs int
	EpisodeExtractionLimit int
	EpisodeRetrievalK      int
}

// TurnResult is what one handled turn reports back to the caller.
type TurnResult struct {
	AssistantReply         string   `json:"assistant_reply"`
	ShortTermMessages      int      `json:"short_term_messages_count"`
	LongTermSummaryText    *string  `json:"long_term_summary_text"` // null until a session summary exists
	EpisodicFactsRetrieved []string `json:"episodic_facts_retrieved"`
}

// Orchestrator runs the full turn pipeline: persist, recall, compose,
// complete, and maintain summaries. Memory-tier failures degrade the turn
// instead of failing it; only persistence of the turn itself and the final
// completion are fatal.
type Orchestrator struct {
	store     *store.Store
	client    llm.Client
	episodic  *EpisodicEngine
	retriever Retriever
	summaries *SummaryEngine
	opts      Options
	logger    zerolog.Logger
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(st *store.Store, client llm.Client, embedder llm.Embedder, opts Options, logger zerolog.Logger) *Orchestrator {
	episodic := NewEpisodicEngine(st, client, embedder, opts.EpisodeExtractionLimit, logger)
	return &Orchestrator{
		store:     st,
		client:    client,
		episodic:  episodic,
		retriever: episodic,
		summaries: NewSummaryEngine(st, client, opts.ShortTermWindow, opts.SummarizeEveryUserMsgs, logger),
		opts:      opts,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Episodic exposes the episodic engine for read-only recall endpoints.
func (o *Orchestrator) Episodic() *EpisodicEngine { return o.episodic }

// Summaries exposes the summary engine for maintenance jobs.
func (o *Orchestrator) Summaries() *SummaryEngine { return o.summaries }

// DefaultSessionID is the session used when a request names none.
func DefaultSessionID(userID string) string {
	return "default_session_" + userID
}

// HandleTurn processes one user message end to end and returns the reply
// along with what each memory tier contributed.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID string, sessionID *string, message string) (*TurnResult, error) {
	session := DefaultSessionID(userID)
	if sessionID != nil && *sessionID != "" {
		session = *sessionID
	}
	log := o.logger.With().Str("user_id", userID).Str("session_id", session).Logger()

	if _, err := o.store.SaveMessage(ctx, store.Message{
		UserID:    userID,
		SessionID: &session,
		Role:      store.RoleUser,
		Content:   message,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	// The window includes the message just saved; it leads the list. The
	// composer renders the whole window and then appends the current
	// utterance again as the final turn, so it appears in both positions.
	recent, err := o.store.LastNMessages(ctx, userID, &session, o.opts.ShortTermWindow)
	if err != nil {
		return nil, fmt.Errorf("load short-term window: %w", err)
	}

	sessionSummary := o.lookupSummary(ctx, log, userID, store.ScopeSession, &session)
	lifetime := o.lookupSummary(ctx, log, userID, store.ScopeUser, nil)

	// Extraction runs before retrieval so the current turn's facts are
	// immediately recallable.
	if _, err := o.episodic.Extract(ctx, userID, &session, message); err != nil {
		log.Error().Err(err).Msg("Episodic extraction failed, continuing without new facts")
	}

	facts, err := o.retriever.RetrieveTopK(ctx, userID, message, o.opts.EpisodeRetrievalK)
	if err != nil {
		log.Error().Err(err).Msg("Episodic retrieval failed, continuing without facts")
		facts = nil
	}

	resp, err := o.client.Complete(ctx, &llm.Request{
		Messages: Compose(PromptInputs{
			LifetimeText:   summaryText(lifetime),
			SessionSummary: summaryText(sessionSummary),
			Facts:          facts,
			History:        recent,
			UserMessage:    message,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	if _, err := o.store.SaveMessage(ctx, store.Message{
		UserID:    userID,
		SessionID: &session,
		Role:      store.RoleAssistant,
		Content:   resp.Text,
	}); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	o.maintainSummaries(ctx, log, userID, session)

	return &TurnResult{
		AssistantReply:         resp.Text,
		ShortTermMessages:      len(recent),
		LongTermSummaryText:    summaryTextPtr(sessionSummary),
		EpisodicFactsRetrieved: facts,
	}, nil
}

func (o *Orchestrator) lookupSummary(ctx context.Context, log zerolog.Logger, userID string, scope store.Scope, sessionID *string) *store.Summary {
	summary, err := o.store.LatestSummary(ctx, userID, scope, sessionID)
	if err != nil {
		log.Error().Err(err).Str("scope", string(scope)).Msg("Summary lookup failed, continuing without it")
		return nil
	}
	return summary
}

// maintainSummaries runs the cadence-driven summarization after the reply is
// already committed, so its failures never cost the user their answer.
func (o *Orchestrator) maintainSummaries(ctx context.Context, log zerolog.Logger, userID, session string) {
	summary, err := o.summaries.MaybeSummarizeSession(ctx, userID, session)
	if err != nil {
		log.Error().Err(err).Msg("Session summarization failed")
		return
	}
	if summary == nil {
		return
	}
	if _, err := o.summaries.RefreshLifetimeSummary(ctx, userID); err != nil {
		log.Error().Err(err).Msg("Lifetime summary refresh failed")
	}
}

func summaryText(s *store.Summary) string {
	if s == nil {
		return ""
	}
	return s.Text
}

func summaryTextPtr(s *store.Summary) *string {
	if s == nil {
		return nil
	}
	return &s.Text
}
