// Package store implements the persistence service for the memory pipeline:
// messages, summaries, and episodes in SQLite. All read operations treat
// absence as a valid state and return empty results, never sql.ErrNoRows.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// Store manages all message, summary, and episode persistence.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates and returns a Store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

func now() int64 { return time.Now().Unix() }

// sessionValue converts an optional session id into a SQL value.
func sessionValue(sessionID *string) interface{} {
	if sessionID == nil {
		return nil
	}
	return *sessionID
}

func scanSessionID(col sql.NullString) *string {
	if !col.Valid {
		return nil
	}
	v := col.String
	return &v
}

// SaveMessage appends a conversation turn. The returned Message carries the
// assigned ID and creation time.
func (s *Store) SaveMessage(ctx context.Context, msg Message) (Message, error) {
	nowUnix := now()
	query := sq.Insert("messages").
		Columns("user_id", "session_id", "role", "content", "created_at").
		Values(msg.UserID, sessionValue(msg.SessionID), string(msg.Role), msg.Content, nowUnix)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build insert query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Err(err).Str("method", "SaveMessage").Msg("Failed to insert message")
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}

	msg.ID = id
	msg.CreatedAt = time.Unix(nowUnix, 0)
	s.logger.Debug().
		Str("method", "SaveMessage").
		Str("user_id", msg.UserID).
		Str("role", string(msg.Role)).
		Int64("id", id).
		Msg("Message saved")
	return msg, nil
}

// LastNMessages returns up to n messages for the user, newest-first. When
// sessionID is non-nil the window is restricted to that session.
func (s *Store) LastNMessages(ctx context.Context, userID string, sessionID *string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}

	query := sq.Select("id", "user_id", "session_id", "role", "content", "created_at").
		From("messages").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(n))
	if sessionID != nil {
		query = query.Where(sq.Eq{"session_id": *sessionID})
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var messages []Message
	for rows.Next() {
		var (
			m         Message
			session   sql.NullString
			role      string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &session, &role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.SessionID = scanSessionID(session)
		m.Role = Role(role)
		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountUserMessagesInSession counts user-role messages for the session. This
// drives the summarization trigger cadence.
func (s *Store) CountUserMessagesInSession(ctx context.Context, userID, sessionID string) (int, error) {
	query := sq.Select("COUNT(*)").
		From("messages").
		Where(sq.Eq{"user_id": userID, "session_id": sessionID, "role": string(RoleUser)})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, queryStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count user messages: %w", err)
	}
	return count, nil
}

// UpsertSummary writes a summary with last-writer-wins semantics on the
// identity key (user_id, scope, session_id). Only one row is live per key.
func (s *Store) UpsertSummary(ctx context.Context, summary Summary) (Summary, error) {
	nowUnix := now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = tx.Rollback() }()

	identity := sq.Eq{
		"user_id":    summary.UserID,
		"scope":      string(summary.Scope),
		"session_id": sessionValue(summary.SessionID),
	}
	update := sq.Update("summaries").
		Set("text", summary.Text).
		Set("created_at", nowUnix).
		Where(identity)
	queryStr, args, err := update.ToSql()
	if err != nil {
		return Summary{}, fmt.Errorf("build update query: %w", err)
	}
	res, err := tx.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return Summary{}, fmt.Errorf("update summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Summary{}, err
	}

	if affected == 0 {
		insert := sq.Insert("summaries").
			Columns("user_id", "session_id", "scope", "text", "created_at").
			Values(summary.UserID, sessionValue(summary.SessionID), string(summary.Scope), summary.Text, nowUnix)
		queryStr, args, err = insert.ToSql()
		if err != nil {
			return Summary{}, fmt.Errorf("build insert query: %w", err)
		}
		insRes, err := tx.ExecContext(ctx, queryStr, args...)
		if err != nil {
			return Summary{}, fmt.Errorf("insert summary: %w", err)
		}
		summary.ID, err = insRes.LastInsertId()
		if err != nil {
			return Summary{}, err
		}
	} else {
		queryStr, args, err = sq.Select("id").From("summaries").Where(identity).ToSql()
		if err != nil {
			return Summary{}, fmt.Errorf("build select query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, queryStr, args...).Scan(&summary.ID); err != nil {
			return Summary{}, fmt.Errorf("select summary id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, err
	}

	summary.CreatedAt = time.Unix(nowUnix, 0)
	s.logger.Info().
		Str("method", "UpsertSummary").
		Str("user_id", summary.UserID).
		Str("scope", string(summary.Scope)).
		Bool("updated", affected > 0).
		Msg("Summary upserted")
	return summary, nil
}

// LatestSummary returns the most recent summary for the identity key, or nil
// when none exists. For session scope a nil sessionID matches any session;
// for user scope the lifetime row (session_id IS NULL) is selected.
func (s *Store) LatestSummary(ctx context.Context, userID string, scope Scope, sessionID *string) (*Summary, error) {
	query := sq.Select("id", "user_id", "session_id", "scope", "text", "created_at").
		From("summaries").
		Where(sq.Eq{"user_id": userID, "scope": string(scope)}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1)
	switch {
	case scope == ScopeSession && sessionID != nil:
		query = query.Where(sq.Eq{"session_id": *sessionID})
	case scope == ScopeUser:
		query = query.Where(sq.Eq{"session_id": nil})
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, queryStr, args...)
	summary, err := scanSummary(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest summary: %w", err)
	}
	return &summary, nil
}

// AllSessionSummaries returns every session-scope summary for the user,
// newest-first.
func (s *Store) AllSessionSummaries(ctx context.Context, userID string) ([]Summary, error) {
	query := sq.Select("id", "user_id", "session_id", "scope", "text", "created_at").
		From("summaries").
		Where(sq.Eq{"user_id": userID, "scope": string(ScopeSession)}).
		OrderBy("created_at DESC", "id DESC")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query session summaries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var summaries []Summary
	for rows.Next() {
		summary, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func scanSummary(scan func(...interface{}) error) (Summary, error) {
	var (
		summary   Summary
		session   sql.NullString
		scope     string
		createdAt int64
	)
	if err := scan(&summary.ID, &summary.UserID, &session, &scope, &summary.Text, &createdAt); err != nil {
		return Summary{}, err
	}
	summary.SessionID = scanSessionID(session)
	summary.Scope = Scope(scope)
	summary.CreatedAt = time.Unix(createdAt, 0)
	return summary, nil
}

// SaveEpisode appends an episodic fact. Episodes are never mutated after
// creation.
func (s *Store) SaveEpisode(ctx context.Context, ep Episode) (Episode, error) {
	nowUnix := now()
	query := sq.Insert("episodes").
		Columns("user_id", "session_id", "fact", "importance", "embedding", "created_at").
		Values(ep.UserID, sessionValue(ep.SessionID), ep.Fact, ep.Importance, EncodeEmbedding(ep.Embedding), nowUnix)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return Episode{}, fmt.Errorf("build insert query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Err(err).Str("method", "SaveEpisode").Msg("Failed to insert episode")
		return Episode{}, fmt.Errorf("insert episode: %w", err)
	}
	ep.ID, err = res.LastInsertId()
	if err != nil {
		return Episode{}, err
	}

	ep.CreatedAt = time.Unix(nowUnix, 0)
	s.logger.Debug().
		Str("method", "SaveEpisode").
		Str("user_id", ep.UserID).
		Int("dimension", len(ep.Embedding)).
		Float64("importance", ep.Importance).
		Int64("id", ep.ID).
		Msg("Episode saved")
	return ep, nil
}

// EpisodesForUser loads every episode for the user. Episodic recall is
// user-scoped, not session-scoped, so there is no session filter.
func (s *Store) EpisodesForUser(ctx context.Context, userID string) ([]Episode, error) {
	query := sq.Select("id", "user_id", "session_id", "fact", "importance", "embedding", "created_at").
		From("episodes").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id ASC")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var episodes []Episode
	for rows.Next() {
		var (
			ep        Episode
			session   sql.NullString
			embBlob   []byte
			createdAt int64
		)
		if err := rows.Scan(&ep.ID, &ep.UserID, &session, &ep.Fact, &ep.Importance, &embBlob, &createdAt); err != nil {
			return nil, err
		}
		vec, err := DecodeEmbedding(embBlob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for episode %d: %w", ep.ID, err)
		}
		ep.SessionID = scanSessionID(session)
		ep.Embedding = vec
		ep.CreatedAt = time.Unix(createdAt, 0)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// LastNEpisodicFacts returns the fact texts of the user's most recent
// episodes, newest-first.
func (s *Store) LastNEpisodicFacts(ctx context.Context, userID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	query := sq.Select("fact").
		From("episodes").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(n))

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodic facts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var facts []string
	for rows.Next() {
		var fact string
		if err := rows.Scan(&fact); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// DailyMessageCounts aggregates the user's message volume per UTC day,
// ascending by date.
func (s *Store) DailyMessageCounts(ctx context.Context, userID string) ([]DailyMessageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT date(created_at, 'unixepoch') AS day, COUNT(*)
FROM messages
WHERE user_id = ?
GROUP BY day
ORDER BY day ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var counts []DailyMessageCount
	for rows.Next() {
		var c DailyMessageCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// UserIDsWithSessionSummaries returns the distinct users that have at least
// one session summary. Used by the lifetime-refresh maintenance job.
func (s *Store) UserIDsWithSessionSummaries(ctx context.Context) ([]string, error) {
	query := sq.Select("DISTINCT user_id").
		From("summaries").
		Where(sq.Eq{"scope": string(ScopeSession)}).
		OrderBy("user_id ASC")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query users with summaries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}
