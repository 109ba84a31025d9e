// Package store provides durable SQLite-backed storage for resolutions,
// debates, delegate votes, transcript messages, human votes, and the cached
// delegate catalog.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lorenzotomasdiez/verdict/internal/debate"
)

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New creates or opens the database at path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initializing schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resolutions (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resolutions_author ON resolutions(author_id, status);

	CREATE TABLE IF NOT EXISTS debates (
		id TEXT PRIMARY KEY,
		resolution_id TEXT NOT NULL REFERENCES resolutions(id),
		status TEXT NOT NULL,
		verdict TEXT,
		intelligent_votes INTEGER NOT NULL DEFAULT 0,
		idiotic_votes INTEGER NOT NULL DEFAULT 0,
		total_votes INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_debates_resolution ON debates(resolution_id);
	CREATE INDEX IF NOT EXISTS idx_debates_status ON debates(status, created_at);

	CREATE TABLE IF NOT EXISTS delegate_votes (
		id TEXT PRIMARY KEY,
		debate_id TEXT NOT NULL REFERENCES debates(id),
		model_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		vote TEXT,
		confidence INTEGER,
		argument TEXT NOT NULL DEFAULT '',
		rebuttal TEXT NOT NULL DEFAULT '',
		raw_output TEXT NOT NULL DEFAULT '',
		error TEXT,
		source TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(debate_id, model_id)
	);

	CREATE TABLE IF NOT EXISTS debate_messages (
		id TEXT PRIMARY KEY,
		debate_id TEXT NOT NULL REFERENCES debates(id),
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		actor_name TEXT NOT NULL,
		stance TEXT NOT NULL,
		content TEXT NOT NULL,
		confidence INTEGER,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_debate ON debate_messages(debate_id);

	CREATE TABLE IF NOT EXISTS human_votes (
		id TEXT PRIMARY KEY,
		debate_id TEXT NOT NULL REFERENCES debates(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		vote TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(debate_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS delegates (
		model_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		rank INTEGER NOT NULL DEFAULT 0,
		context_length INTEGER NOT NULL DEFAULT 0,
		prompt_price TEXT NOT NULL DEFAULT '',
		completion_price TEXT NOT NULL DEFAULT '',
		weekly_tokens INTEGER NOT NULL DEFAULT 0,
		synced_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// EnsureUser inserts the user or refreshes its display name.
func (s *Store) EnsureUser(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		id, name, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: ensuring user: %w", err)
	}
	return nil
}

// CreateResolution inserts a new resolution.
func (s *Store) CreateResolution(ctx context.Context, res *debate.Resolution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolutions (id, author_id, title, body, topic, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.AuthorID, res.Title, res.Body, res.Topic, res.Status,
		formatTime(res.CreatedAt), formatTime(res.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: creating resolution: %w", err)
	}
	return nil
}

// GetResolution loads one resolution by ID.
func (s *Store) GetResolution(ctx context.Context, id string) (*debate.Resolution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, author_id, title, body, topic, status, created_at, updated_at
		FROM resolutions WHERE id = ?`, id)
	return scanResolution(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResolution(row rowScanner) (*debate.Resolution, error) {
	var res debate.Resolution
	var createdAt, updatedAt string
	err := row.Scan(&res.ID, &res.AuthorID, &res.Title, &res.Body, &res.Topic, &res.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resolution", debate.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scanning resolution: %w", err)
	}
	res.CreatedAt = parseTime(createdAt)
	res.UpdatedAt = parseTime(updatedAt)
	return &res, nil
}

// UpdateDraft rewrites a draft's title/body/topic. Only the author may touch
// it, and only while it is still a draft.
func (s *Store) UpdateDraft(ctx context.Context, res *debate.Resolution) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resolutions SET title = ?, body = ?, topic = ?, updated_at = ?
		WHERE id = ? AND author_id = ? AND status = ?`,
		res.Title, res.Body, res.Topic, formatTime(time.Now()),
		res.ID, res.AuthorID, debate.ResolutionDraft)
	if err != nil {
		return fmt.Errorf("store: updating draft: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: draft", debate.ErrNotFound)
	}
	return nil
}

// DeleteDraft removes a draft owned by authorID.
func (s *Store) DeleteDraft(ctx context.Context, id, authorID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM resolutions WHERE id = ? AND author_id = ? AND status = ?`,
		id, authorID, debate.ResolutionDraft)
	if err != nil {
		return fmt.Errorf("store: deleting draft: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: draft", debate.ErrNotFound)
	}
	return nil
}

// ListDrafts returns the author's drafts, newest first.
func (s *Store) ListDrafts(ctx context.Context, authorID string) ([]debate.Resolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author_id, title, body, topic, status, created_at, updated_at
		FROM resolutions WHERE author_id = ? AND status = ?
		ORDER BY updated_at DESC`, authorID, debate.ResolutionDraft)
	if err != nil {
		return nil, fmt.Errorf("store: listing drafts: %w", err)
	}
	defer rows.Close()

	var drafts []debate.Resolution
	for rows.Next() {
		res, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *res)
	}
	return drafts, rows.Err()
}

// UpdateResolutionStatus moves a resolution through its lifecycle.
func (s *Store) UpdateResolutionStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resolutions SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("store: updating resolution status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: resolution", debate.ErrNotFound)
	}
	return nil
}

// CreateDebate inserts the active debate row and its opening message.
func (s *Store) CreateDebate(ctx context.Context, deb *debate.Debate, opening *debate.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: creating debate: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO debates (id, resolution_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		deb.ID, deb.ResolutionID, deb.Status, formatTime(deb.CreatedAt), formatTime(deb.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: creating debate: %w", err)
	}
	if err := insertMessage(ctx, tx, opening); err != nil {
		return err
	}
	return tx.Commit()
}

// CloseDebate writes the full outcome of one debate atomically: every
// delegate vote row, every pending message, the closed debate row, and the
// closed resolution. A failure rolls everything back, leaving the debate
// active with no partial rows visible.
func (s *Store) CloseDebate(ctx context.Context, close debate.CloseParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: closing debate: %w", err)
	}
	defer tx.Rollback()

	for i := range close.Votes {
		v := &close.Votes[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO delegate_votes
				(id, debate_id, model_id, display_name, provider, vote, confidence,
				 argument, rebuttal, raw_output, error, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.DebateID, v.ModelID, v.DisplayName, v.Provider,
			v.Vote, v.Confidence, v.Argument, v.Rebuttal, v.RawOutput, v.Error, v.Source,
			formatTime(v.CreatedAt))
		if err != nil {
			return fmt.Errorf("store: inserting delegate vote: %w", err)
		}
	}

	for i := range close.Messages {
		if err := insertMessage(ctx, tx, &close.Messages[i]); err != nil {
			return err
		}
	}

	deb := close.Debate
	result, err := tx.ExecContext(ctx, `
		UPDATE debates
		SET status = ?, verdict = ?, intelligent_votes = ?, idiotic_votes = ?, total_votes = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		deb.Status, deb.Verdict, deb.IntelligentVotes, deb.IdioticVotes, deb.TotalVotes,
		formatTime(deb.UpdatedAt), deb.ID, debate.DebateActive)
	if err != nil {
		return fmt.Errorf("store: closing debate: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("store: debate %s is not active", deb.ID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE resolutions SET status = ?, updated_at = ? WHERE id = ?`,
		debate.ResolutionClosed, formatTime(deb.UpdatedAt), deb.ResolutionID)
	if err != nil {
		return fmt.Errorf("store: closing resolution: %w", err)
	}

	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, msg *debate.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO debate_messages
			(id, debate_id, actor_type, actor_id, actor_name, stance, content, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.DebateID, msg.ActorType, msg.ActorID, msg.ActorName,
		msg.Stance, msg.Content, msg.Confidence, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: inserting message: %w", err)
	}
	return nil
}

// AppendMessage appends one transcript message.
func (s *Store) AppendMessage(ctx context.Context, msg *debate.Message) error {
	return insertMessage(ctx, s.db, msg)
}

// UpsertHumanVote inserts or replaces a user's vote, keyed by
// (debate, user). Last write wins.
func (s *Store) UpsertHumanVote(ctx context.Context, vote *debate.HumanVote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO human_votes (id, debate_id, user_id, vote, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(debate_id, user_id) DO UPDATE SET vote = excluded.vote, created_at = excluded.created_at`,
		vote.ID, vote.DebateID, vote.UserID, vote.Vote, formatTime(vote.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: upserting human vote: %w", err)
	}
	return nil
}
