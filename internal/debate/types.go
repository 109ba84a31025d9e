// Package debate implements the debate orchestration and consensus engine:
// it fans a resolution out to a panel of delegates, tolerates partial
// failure, normalizes semi-structured replies into vote records, aggregates
// them into a binary verdict, and persists and publishes the outcome.
package debate

import (
	"strings"
	"time"
)

// The two possible votes and verdicts. There is no abstain: every vote string
// in the system collapses onto one of these via NormalizeVote.
const (
	VoteIntelligent = "Intelligent"
	VoteIdiotic     = "Idiotic"
)

// Resolution lifecycle statuses.
const (
	ResolutionDraft     = "draft"
	ResolutionSubmitted = "submitted"
	ResolutionDebating  = "debating"
	ResolutionClosed    = "closed"
)

// Debate statuses. A debate is created active and transitions to closed
// exactly once, after every dispatched delegate call has settled.
const (
	DebateActive = "active"
	DebateClosed = "closed"
)

// Transcript actor types.
const (
	ActorSystem   = "system"
	ActorDelegate = "delegate"
	ActorHuman    = "human"
)

// Transcript stances.
const (
	StanceIntelligent = "intelligent"
	StanceIdiotic     = "idiotic"
	StanceNeutral     = "neutral"
)

// Resolution is a proposed statement under debate. Title and body freeze once
// the resolution leaves draft.
type Resolution struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorUserId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Debate is one evaluation round for a resolution. Vote percentages are
// recomputed from the counts, never stored.
type Debate struct {
	ID               string    `json:"id"`
	ResolutionID     string    `json:"resolutionId"`
	Status           string    `json:"status"`
	Verdict          string    `json:"verdict,omitempty"`
	IntelligentVotes int       `json:"intelligentVotes"`
	IdioticVotes     int       `json:"idioticVotes"`
	TotalVotes       int       `json:"totalVotes"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DelegateVote is one delegate's outcome within one debate. Exactly one of
// {Vote set, Error set} holds. Immutable once written.
type DelegateVote struct {
	ID          string    `json:"-"`
	DebateID    string    `json:"-"`
	ModelID     string    `json:"modelId"`
	DisplayName string    `json:"displayName"`
	Provider    string    `json:"provider"`
	Vote        *string   `json:"vote"`
	Confidence  *int      `json:"confidence"`
	Argument    string    `json:"argument,omitempty"`
	Rebuttal    string    `json:"rebuttal,omitempty"`
	RawOutput   string    `json:"-"`
	Error       *string   `json:"error,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is an append-only transcript entry.
type Message struct {
	ID         string    `json:"id"`
	DebateID   string    `json:"-"`
	ActorType  string    `json:"actorType"`
	ActorID    *string   `json:"actorId"`
	ActorName  string    `json:"actorName"`
	Stance     string    `json:"stance"`
	Content    string    `json:"content"`
	Confidence *int      `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HumanVote is one user's alignment vote on a debate. Unique per
// (debate, user); a second vote overwrites the first.
type HumanVote struct {
	ID        string    `json:"id"`
	DebateID  string    `json:"-"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Vote      string    `json:"vote"`
	CreatedAt time.Time `json:"createdAt"`
}

// Consensus is the computed tally/percentage/verdict bundle for a debate.
type Consensus struct {
	Verdict          string `json:"verdict"`
	IntelligentVotes int    `json:"intelligentVotes"`
	IdioticVotes     int    `json:"idioticVotes"`
	TotalVotes       int    `json:"totalVotes"`
	IntelligentPct   int    `json:"intelligentPct"`
	IdioticPct       int    `json:"idioticPct"`
}

// View is the fully hydrated read model for one debate.
type View struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Status          string         `json:"status"`
	Consensus       Consensus      `json:"consensus"`
	Resolution      Resolution     `json:"resolution"`
	DelegateResults []DelegateVote `json:"delegateResults"`
	Messages        []Message      `json:"messages"`
	HumanVotes      []HumanVote    `json:"humanVotes"`
}

// NormalizeVote collapses any vote string onto the two-valued vote space: a
// string whose lowercased form starts with "idi" is Idiotic, everything else
// is Intelligent. Idempotent.
func NormalizeVote(s string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "idi") {
		return VoteIdiotic
	}
	return VoteIntelligent
}

// StanceOf maps a vote to its transcript stance.
func StanceOf(vote string) string {
	if NormalizeVote(vote) == VoteIdiotic {
		return StanceIdiotic
	}
	return StanceIntelligent
}
