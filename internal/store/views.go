package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lorenzotomasdiez/verdict/internal/catalog"
	"github.com/lorenzotomasdiez/verdict/internal/debate"
)

// GetDebateView hydrates the full read model for one debate.
func (s *Store) GetDebateView(ctx context.Context, debateID string) (*debate.View, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, resolution_id, status, verdict, intelligent_votes, idiotic_votes, total_votes, created_at, updated_at
		FROM debates WHERE id = ?`, debateID)

	var (
		deb                  debate.Debate
		verdict              sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&deb.ID, &deb.ResolutionID, &deb.Status, &verdict,
		&deb.IntelligentVotes, &deb.IdioticVotes, &deb.TotalVotes, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: debate", debate.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scanning debate: %w", err)
	}
	deb.Verdict = verdict.String
	deb.CreatedAt = parseTime(createdAt)
	deb.UpdatedAt = parseTime(updatedAt)

	view := &debate.View{
		ID:        deb.ID,
		CreatedAt: deb.CreatedAt,
		UpdatedAt: deb.UpdatedAt,
		Status:    deb.Status,
	}
	view.Consensus = debate.Consensus{
		Verdict:          deb.Verdict,
		IntelligentVotes: deb.IntelligentVotes,
		IdioticVotes:     deb.IdioticVotes,
		TotalVotes:       deb.TotalVotes,
	}
	view.Consensus.IntelligentPct, view.Consensus.IdioticPct =
		debate.Percentages(deb.IntelligentVotes, deb.IdioticVotes)

	res, err := s.GetResolution(ctx, deb.ResolutionID)
	if err != nil {
		return nil, err
	}
	view.Resolution = *res

	if view.DelegateResults, err = s.delegateVotes(ctx, debateID); err != nil {
		return nil, err
	}
	if view.Messages, err = s.messages(ctx, debateID); err != nil {
		return nil, err
	}
	if view.HumanVotes, err = s.humanVotes(ctx, debateID); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Store) delegateVotes(ctx context.Context, debateID string) ([]debate.DelegateVote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, debate_id, model_id, display_name, provider, vote, confidence,
		       argument, rebuttal, raw_output, error, source, created_at
		FROM delegate_votes WHERE debate_id = ? ORDER BY rowid`, debateID)
	if err != nil {
		return nil, fmt.Errorf("store: querying delegate votes: %w", err)
	}
	defer rows.Close()

	var votes []debate.DelegateVote
	for rows.Next() {
		var (
			v          debate.DelegateVote
			vote       sql.NullString
			confidence sql.NullInt64
			voteErr    sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&v.ID, &v.DebateID, &v.ModelID, &v.DisplayName, &v.Provider,
			&vote, &confidence, &v.Argument, &v.Rebuttal, &v.RawOutput, &voteErr, &v.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scanning delegate vote: %w", err)
		}
		if vote.Valid {
			v.Vote = &vote.String
		}
		if confidence.Valid {
			c := int(confidence.Int64)
			v.Confidence = &c
		}
		if voteErr.Valid {
			v.Error = &voteErr.String
		}
		v.CreatedAt = parseTime(createdAt)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (s *Store) messages(ctx context.Context, debateID string) ([]debate.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, debate_id, actor_type, actor_id, actor_name, stance, content, confidence, created_at
		FROM debate_messages WHERE debate_id = ? ORDER BY rowid`, debateID)
	if err != nil {
		return nil, fmt.Errorf("store: querying messages: %w", err)
	}
	defer rows.Close()

	var messages []debate.Message
	for rows.Next() {
		var (
			msg        debate.Message
			actorID    sql.NullString
			confidence sql.NullInt64
			createdAt  string
		)
		if err := rows.Scan(&msg.ID, &msg.DebateID, &msg.ActorType, &actorID,
			&msg.ActorName, &msg.Stance, &msg.Content, &confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scanning message: %w", err)
		}
		if actorID.Valid {
			msg.ActorID = &actorID.String
		}
		if confidence.Valid {
			c := int(confidence.Int64)
			msg.Confidence = &c
		}
		msg.CreatedAt = parseTime(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) humanVotes(ctx context.Context, debateID string) ([]debate.HumanVote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hv.id, hv.debate_id, hv.user_id, COALESCE(u.name, ''), hv.vote, hv.created_at
		FROM human_votes hv LEFT JOIN users u ON u.id = hv.user_id
		WHERE hv.debate_id = ? ORDER BY hv.rowid`, debateID)
	if err != nil {
		return nil, fmt.Errorf("store: querying human votes: %w", err)
	}
	defer rows.Close()

	var votes []debate.HumanVote
	for rows.Next() {
		var (
			hv        debate.HumanVote
			createdAt string
		)
		if err := rows.Scan(&hv.ID, &hv.DebateID, &hv.UserID, &hv.UserName, &hv.Vote, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scanning human vote: %w", err)
		}
		hv.CreatedAt = parseTime(createdAt)
		votes = append(votes, hv)
	}
	return votes, rows.Err()
}

// ArchiveItem is one row of the closed-debate archive.
type ArchiveItem struct {
	DebateID     string           `json:"debateId"`
	ResolutionID string           `json:"resolutionId"`
	Title        string           `json:"title"`
	Topic        string           `json:"topic"`
	AuthorID     string           `json:"authorUserId"`
	Consensus    debate.Consensus `json:"consensus"`
	ClosedAt     time.Time        `json:"closedAt"`
}

// ListClosedDebates returns the archive, newest first.
func (s *Store) ListClosedDebates(ctx context.Context, limit, offset int) ([]ArchiveItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.resolution_id, r.title, r.topic, r.author_id,
		       COALESCE(d.verdict, ''), d.intelligent_votes, d.idiotic_votes, d.total_votes, d.updated_at
		FROM debates d JOIN resolutions r ON r.id = d.resolution_id
		WHERE d.status = ?
		ORDER BY d.updated_at DESC
		LIMIT ? OFFSET ?`, debate.DebateClosed, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: listing archive: %w", err)
	}
	defer rows.Close()

	var items []ArchiveItem
	for rows.Next() {
		var (
			item     ArchiveItem
			closedAt string
		)
		if err := rows.Scan(&item.DebateID, &item.ResolutionID, &item.Title, &item.Topic, &item.AuthorID,
			&item.Consensus.Verdict, &item.Consensus.IntelligentVotes, &item.Consensus.IdioticVotes,
			&item.Consensus.TotalVotes, &closedAt); err != nil {
			return nil, fmt.Errorf("store: scanning archive item: %w", err)
		}
		item.Consensus.IntelligentPct, item.Consensus.IdioticPct =
			debate.Percentages(item.Consensus.IntelligentVotes, item.Consensus.IdioticVotes)
		item.ClosedAt = parseTime(closedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// LeaderboardEntry is one user's alignment record against closed verdicts.
type LeaderboardEntry struct {
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	TotalVotes   int    `json:"totalVotes"`
	AlignedVotes int    `json:"alignedVotes"`
	AlignmentPct int    `json:"alignmentPct"`
}

// Leaderboard ranks users by how often their vote matched the final verdict.
// Only votes on closed debates count.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT hv.user_id, COALESCE(u.name, ''),
		       COUNT(*) AS total,
		       SUM(CASE WHEN hv.vote = d.verdict THEN 1 ELSE 0 END) AS aligned
		FROM human_votes hv
		JOIN debates d ON d.id = hv.debate_id AND d.status = ?
		LEFT JOIN users u ON u.id = hv.user_id
		GROUP BY hv.user_id
		ORDER BY aligned DESC, total DESC
		LIMIT ?`, debate.DebateClosed, limit)
	if err != nil {
		return nil, fmt.Errorf("store: querying leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.UserName, &e.TotalVotes, &e.AlignedVotes); err != nil {
			return nil, fmt.Errorf("store: scanning leaderboard entry: %w", err)
		}
		if e.TotalVotes > 0 {
			e.AlignmentPct = int(math.Round(float64(e.AlignedVotes) / float64(e.TotalVotes) * 100))
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AlignmentItem is one entry in a user's alignment history.
type AlignmentItem struct {
	DebateID string    `json:"debateId"`
	Title    string    `json:"title"`
	Vote     string    `json:"vote"`
	Verdict  string    `json:"verdict"`
	Aligned  bool      `json:"aligned"`
	VotedAt  time.Time `json:"votedAt"`
}

// UserAlignment returns a user's vote history against closed verdicts,
// newest first.
func (s *Store) UserAlignment(ctx context.Context, userID string) ([]AlignmentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hv.debate_id, r.title, hv.vote, COALESCE(d.verdict, ''), hv.created_at
		FROM human_votes hv
		JOIN debates d ON d.id = hv.debate_id AND d.status = ?
		JOIN resolutions r ON r.id = d.resolution_id
		WHERE hv.user_id = ?
		ORDER BY hv.created_at DESC`, debate.DebateClosed, userID)
	if err != nil {
		return nil, fmt.Errorf("store: querying alignment history: %w", err)
	}
	defer rows.Close()

	var items []AlignmentItem
	for rows.Next() {
		var (
			item    AlignmentItem
			votedAt string
		)
		if err := rows.Scan(&item.DebateID, &item.Title, &item.Vote, &item.Verdict, &votedAt); err != nil {
			return nil, fmt.Errorf("store: scanning alignment item: %w", err)
		}
		item.Aligned = item.Vote == item.Verdict
		item.VotedAt = parseTime(votedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveDelegates replaces the persisted delegate catalog.
func (s *Store) SaveDelegates(ctx context.Context, delegates []catalog.Delegate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: saving delegates: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM delegates`); err != nil {
		return fmt.Errorf("store: clearing delegates: %w", err)
	}
	now := formatTime(time.Now())
	for _, d := range delegates {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO delegates
				(model_id, display_name, provider, rank, context_length, prompt_price, completion_price, weekly_tokens, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ModelID, d.DisplayName, d.Provider, d.Rank, d.ContextLength,
			d.PromptPrice, d.CompletionPrice, d.WeeklyTokens, now)
		if err != nil {
			return fmt.Errorf("store: inserting delegate: %w", err)
		}
	}
	return tx.Commit()
}

// LoadDelegates returns the persisted catalog ordered by rank.
func (s *Store) LoadDelegates(ctx context.Context) ([]catalog.Delegate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, display_name, provider, rank, context_length, prompt_price, completion_price, weekly_tokens
		FROM delegates ORDER BY rank`)
	if err != nil {
		return nil, fmt.Errorf("store: loading delegates: %w", err)
	}
	defer rows.Close()

	var delegates []catalog.Delegate
	for rows.Next() {
		var d catalog.Delegate
		if err := rows.Scan(&d.ModelID, &d.DisplayName, &d.Provider, &d.Rank,
			&d.ContextLength, &d.PromptPrice, &d.CompletionPrice, &d.WeeklyTokens); err != nil {
			return nil, fmt.Errorf("store: scanning delegate: %w", err)
		}
		delegates = append(delegates, d)
	}
	return delegates, rows.Err()
}
