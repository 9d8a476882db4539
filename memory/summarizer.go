package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/recalld/llm"
	"github.com/aschepis/recalld/store"
)

const (
	sessionSummarySystemPrompt = `You summarize one conversation session between a user and an assistant.

Write a concise summary in plain prose that captures what the user wanted,
what was decided or learned, and any details worth carrying into future turns.
Output ONLY the summary text.`

	lifetimeSummarySystemPrompt = `You maintain a long-term profile of a user from summaries of their past sessions.

Combine the session summaries into one concise profile of the user: who they
are, what they care about, and any stable preferences or facts.
Output ONLY the profile text.`
)

// SummaryEngine maintains the rolling session summaries and the per-user
// lifetime summary.
type SummaryEngine struct {
	store           *store.Store
	client          llm.Client
	shortTermWindow int
	period          int
	logger          zerolog.Logger
}

// NewSummaryEngine constructs a SummaryEngine. period is the user-message
// cadence at which a session gets re-summarized; shortTermWindow sizes the
// transcript fed to the summarizer (twice the window).
func NewSummaryEngine(st *store.Store, client llm.Client, shortTermWindow, period int, logger zerolog.Logger) *SummaryEngine {
	return &SummaryEngine{
		store:           st,
		client:          client,
		shortTermWindow: shortTermWindow,
		period:          period,
		logger:          logger.With().Str("component", "summarizer").Logger(),
	}
}

// ShouldSummarize reports whether the user-message count has hit the cadence.
// A count of zero never triggers.
func (s *SummaryEngine) ShouldSummarize(userMessageCount int) bool {
	return userMessageCount > 0 && userMessageCount%s.period == 0
}

// MaybeSummarizeSession re-summarizes the session when the cadence is due and
// upserts the result. Returns nil when no summarization happened.
func (s *SummaryEngine) MaybeSummarizeSession(ctx context.Context, userID, sessionID string) (*store.Summary, error) {
	count, err := s.store.CountUserMessagesInSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.ShouldSummarize(count) {
		return nil, nil
	}

	window := 2 * s.shortTermWindow
	messages, err := s.store.LastNMessages(ctx, userID, &sessionID, window)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	resp, err := s.client.Complete(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: sessionSummarySystemPrompt},
			{Role: llm.RoleUser, Content: transcript(messages)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session summary completion: %w", err)
	}

	summary, err := s.store.UpsertSummary(ctx, store.Summary{
		UserID:    userID,
		SessionID: &sessionID,
		Scope:     store.ScopeSession,
		Text:      strings.TrimSpace(resp.Text),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Int("user_messages", count).
		Msg("Session summary refreshed")
	return &summary, nil
}

// RefreshLifetimeSummary rebuilds the user's lifetime summary from all of
// their session summaries. With no session summaries it does nothing and
// makes no model call.
func (s *SummaryEngine) RefreshLifetimeSummary(ctx context.Context, userID string) (*store.Summary, error) {
	summaries, err := s.store.AllSessionSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	lines := lo.Map(summaries, func(sum store.Summary, _ int) string {
		return "- " + sum.Text
	})
	resp, err := s.client.Complete(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: lifetimeSummarySystemPrompt},
			{Role: llm.RoleUser, Content: strings.Join(lines, "\n")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("lifetime summary completion: %w", err)
	}

	summary, err := s.store.UpsertSummary(ctx, store.Summary{
		UserID: userID,
		Scope:  store.ScopeUser,
		Text:   strings.TrimSpace(resp.Text),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("session_summaries", len(summaries)).
		Msg("Lifetime summary refreshed")
	return &summary, nil
}

// transcript renders messages oldest-first as "role: content" lines. The
// store hands them back newest-first, so the order is reversed here.
func transcript(messages []store.Message) string {
	lines := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}
