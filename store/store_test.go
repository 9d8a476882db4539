package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aschepis/recalld/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// setupTestDB creates an in-memory database and runs migrations
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	migrationsPath := filepath.Join(cwd, "..", "migrations")
	if !fileExists(filepath.Join(migrationsPath, "000001_initial_schema.up.sql")) {
		t.Fatalf("migrations directory not found at %s", migrationsPath)
	}

	if err := migrations.RunMigrations(db, migrationsPath, zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func strPtr(s string) *string { return &s }

func TestSaveAndLoadMessages(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	session := strPtr("sess-1")
	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		role := RoleUser
		if c == "second" {
			role = RoleAssistant
		}
		if _, err := s.SaveMessage(ctx, Message{
			UserID:    "alice",
			SessionID: session,
			Role:      role,
			Content:   c,
		}); err != nil {
			t.Fatalf("SaveMessage(%q): %v", c, err)
		}
	}

	msgs, err := s.LastNMessages(ctx, "alice", session, 2)
	if err != nil {
		t.Fatalf("LastNMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Newest first: same-second inserts must break the tie by id.
	if msgs[0].Content != "third" || msgs[1].Content != "second" {
		t.Errorf("unexpected ordering: %q, %q", msgs[0].Content, msgs[1].Content)
	}
	if msgs[0].SessionID == nil || *msgs[0].SessionID != "sess-1" {
		t.Errorf("session id not round-tripped: %v", msgs[0].SessionID)
	}
}

func TestLastNMessagesFiltersBySession(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	for _, m := range []Message{
		{UserID: "alice", SessionID: strPtr("a"), Role: RoleUser, Content: "in-a"},
		{UserID: "alice", SessionID: strPtr("b"), Role: RoleUser, Content: "in-b"},
		{UserID: "bob", SessionID: strPtr("a"), Role: RoleUser, Content: "other-user"},
	} {
		if _, err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	msgs, err := s.LastNMessages(ctx, "alice", strPtr("a"), 10)
	if err != nil {
		t.Fatalf("LastNMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "in-a" {
		t.Fatalf("expected only in-a, got %+v", msgs)
	}

	// Nil session spans all of the user's sessions.
	msgs, err = s.LastNMessages(ctx, "alice", nil, 10)
	if err != nil {
		t.Fatalf("LastNMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages across sessions, got %d", len(msgs))
	}
}

func TestCountUserMessagesInSession(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.SaveMessage(ctx, Message{UserID: "alice", SessionID: strPtr("s"), Role: RoleUser, Content: "u"}); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
		if _, err := s.SaveMessage(ctx, Message{UserID: "alice", SessionID: strPtr("s"), Role: RoleAssistant, Content: "a"}); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	count, err := s.CountUserMessagesInSession(ctx, "alice", "s")
	if err != nil {
		t.Fatalf("CountUserMessagesInSession: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 user messages, got %d", count)
	}
}

func TestUpsertSummaryLastWriterWins(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	session := strPtr("sess-1")
	first, err := s.UpsertSummary(ctx, Summary{UserID: "alice", SessionID: session, Scope: ScopeSession, Text: "v1"})
	if err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}
	second, err := s.UpsertSummary(ctx, Summary{UserID: "alice", SessionID: session, Scope: ScopeSession, Text: "v2"})
	if err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}
	// The update path reports the id of the row it overwrote.
	if second.ID != first.ID {
		t.Errorf("second upsert returned id %d, want %d", second.ID, first.ID)
	}

	latest, err := s.LatestSummary(ctx, "alice", ScopeSession, session)
	if err != nil {
		t.Fatalf("LatestSummary: %v", err)
	}
	if latest == nil || latest.Text != "v2" {
		t.Fatalf("expected v2, got %+v", latest)
	}
	if latest.ID != first.ID {
		t.Errorf("upsert created a second row: ids %d and %d", first.ID, latest.ID)
	}

	all, err := s.AllSessionSummaries(ctx, "alice")
	if err != nil {
		t.Fatalf("AllSessionSummaries: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected a single live summary per identity, got %d", len(all))
	}
}

func TestUpsertSummaryLifetimeScope(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	// The lifetime row has no session and is independent of session rows.
	if _, err := s.UpsertSummary(ctx, Summary{UserID: "alice", Scope: ScopeUser, Text: "life-v1"}); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}
	if _, err := s.UpsertSummary(ctx, Summary{UserID: "alice", SessionID: strPtr("s"), Scope: ScopeSession, Text: "sess"}); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}
	if _, err := s.UpsertSummary(ctx, Summary{UserID: "alice", Scope: ScopeUser, Text: "life-v2"}); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}

	lifetime, err := s.LatestSummary(ctx, "alice", ScopeUser, nil)
	if err != nil {
		t.Fatalf("LatestSummary: %v", err)
	}
	if lifetime == nil || lifetime.Text != "life-v2" {
		t.Fatalf("expected life-v2, got %+v", lifetime)
	}
	if lifetime.SessionID != nil {
		t.Errorf("lifetime summary should have no session, got %v", *lifetime.SessionID)
	}
}

func TestLatestSummaryAbsent(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())

	latest, err := s.LatestSummary(context.Background(), "nobody", ScopeSession, strPtr("s"))
	if err != nil {
		t.Fatalf("LatestSummary: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil for absent summary, got %+v", latest)
	}
}

func TestSaveAndLoadEpisodes(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	saved, err := s.SaveEpisode(ctx, Episode{
		UserID:     "alice",
		SessionID:  strPtr("s"),
		Fact:       "prefers tea over coffee",
		Importance: 0.8,
		Embedding:  []float32{0.1, 0.2, 0.3},
	})
	if err != nil {
		t.Fatalf("SaveEpisode: %v", err)
	}
	if saved.ID == 0 {
		t.Error("expected episode id to be assigned")
	}

	episodes, err := s.EpisodesForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("EpisodesForUser: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(episodes))
	}
	ep := episodes[0]
	if ep.Fact != "prefers tea over coffee" || ep.Importance != 0.8 {
		t.Errorf("episode fields not round-tripped: %+v", ep)
	}
	if len(ep.Embedding) != 3 || ep.Embedding[2] != 0.3 {
		t.Errorf("embedding not round-tripped: %v", ep.Embedding)
	}
}

func TestLastNEpisodicFacts(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	for _, fact := range []string{"one", "two", "three"} {
		if _, err := s.SaveEpisode(ctx, Episode{UserID: "alice", Fact: fact, Importance: 0.5}); err != nil {
			t.Fatalf("SaveEpisode: %v", err)
		}
	}

	facts, err := s.LastNEpisodicFacts(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("LastNEpisodicFacts: %v", err)
	}
	if len(facts) != 2 || facts[0] != "three" || facts[1] != "two" {
		t.Errorf("expected newest-first [three two], got %v", facts)
	}
}

func TestDailyMessageCounts(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := s.SaveMessage(ctx, Message{UserID: "alice", Role: RoleUser, Content: "hi"}); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}
	if _, err := s.SaveMessage(ctx, Message{UserID: "bob", Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	counts, err := s.DailyMessageCounts(ctx, "alice")
	if err != nil {
		t.Fatalf("DailyMessageCounts: %v", err)
	}
	if len(counts) != 1 {
		t.Fatalf("expected 1 day bucket, got %d", len(counts))
	}
	if counts[0].Count != 4 {
		t.Errorf("expected 4 messages today, got %d", counts[0].Count)
	}
	if len(counts[0].Date) != len("2006-01-02") {
		t.Errorf("unexpected date format: %q", counts[0].Date)
	}
}

func TestUserIDsWithSessionSummaries(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	for _, u := range []string{"bob", "alice", "alice"} {
		if _, err := s.UpsertSummary(ctx, Summary{UserID: u, SessionID: strPtr("s-" + u), Scope: ScopeSession, Text: "t"}); err != nil {
			t.Fatalf("UpsertSummary: %v", err)
		}
	}
	// Lifetime summaries do not make a user eligible.
	if _, err := s.UpsertSummary(ctx, Summary{UserID: "carol", Scope: ScopeUser, Text: "t"}); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}

	users, err := s.UserIDsWithSessionSummaries(ctx)
	if err != nil {
		t.Fatalf("UserIDsWithSessionSummaries: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("expected [alice bob], got %v", users)
	}
}
