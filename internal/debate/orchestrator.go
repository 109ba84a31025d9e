package debate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/verdict/internal/catalog"
	"github.com/lorenzotomasdiez/verdict/internal/events"
)

// Sentinel errors surfaced to callers. Delegate failures are never among
// them: they are recorded per delegate and the debate completes regardless.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateResolution(ctx context.Context, res *Resolution) error
	GetResolution(ctx context.Context, id string) (*Resolution, error)
	UpdateResolutionStatus(ctx context.Context, id, status string) error
	CreateDebate(ctx context.Context, deb *Debate, opening *Message) error
	// CloseDebate writes every delegate vote row, every pending message, the
	// closed debate row, and the closed resolution row in one transaction.
	CloseDebate(ctx context.Context, close CloseParams) error
	AppendMessage(ctx context.Context, msg *Message) error
	UpsertHumanVote(ctx context.Context, vote *HumanVote) error
	GetDebateView(ctx context.Context, debateID string) (*View, error)
}

// CloseParams carries everything the atomic debate-close write needs.
type CloseParams struct {
	Debate   *Debate
	Votes    []DelegateVote
	Messages []Message
}

// DelegateCatalog selects the delegate panel for a debate.
type DelegateCatalog interface {
	Resolve(ctx context.Context, ids []string) []catalog.Delegate
}

// Publisher pushes debate lifecycle events to subscribers.
type Publisher interface {
	Publish(debateID, eventType string, payload any)
}

// Orchestrator runs one debate to completion: create, fan out, settle all,
// persist, tally, close, publish.
type Orchestrator struct {
	store       Store
	catalog     DelegateCatalog
	caller      Caller
	bus         Publisher
	logger      *zap.Logger
	callTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(store Store, cat DelegateCatalog, caller Caller, bus Publisher, logger *zap.Logger, callTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:       store,
		catalog:     cat,
		caller:      caller,
		bus:         bus,
		logger:      logger,
		callTimeout: callTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// SubmitParams is the collaborator-facing entry point's input. Either
// ResolutionID references an existing draft by the same author, or Title and
// Body carry a new resolution inline.
type SubmitParams struct {
	ResolutionID string
	AuthorID     string
	AuthorName   string
	Title        string
	Body         string
	Topic        string
	DelegateIDs  []string
	HumanVote    string // optional immediate vote by the author
}

// Submit runs one complete debate and returns the hydrated view. An
// individual delegate failure never aborts the debate; a persistence failure
// during close leaves the debate active and is returned to the caller.
func (o *Orchestrator) Submit(ctx context.Context, p SubmitParams) (*View, error) {
	res, err := o.resolveResolution(ctx, p)
	if err != nil {
		return nil, err
	}

	if err := o.store.UpdateResolutionStatus(ctx, res.ID, ResolutionDebating); err != nil {
		return nil, err
	}
	res.Status = ResolutionDebating

	delegates := o.catalog.Resolve(ctx, p.DelegateIDs)

	now := o.now().UTC()
	deb := &Debate{
		ID:           o.newID(),
		ResolutionID: res.ID,
		Status:       DebateActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	opening := o.systemMessage(deb.ID, StanceNeutral,
		fmt.Sprintf("Debate opened: %q goes before an assembly of %d delegates.", res.Title, len(delegates)))
	if err := o.store.CreateDebate(ctx, deb, opening); err != nil {
		return nil, err
	}

	o.bus.Publish(deb.ID, events.TypeDebateStarted, map[string]any{
		"debateId":      deb.ID,
		"resolutionId":  res.ID,
		"title":         res.Title,
		"delegateCount": len(delegates),
	})
	o.logger.Info("debate started",
		zap.String("debate_id", deb.ID),
		zap.String("resolution_id", res.ID),
		zap.Int("delegates", len(delegates)))

	outcomes := o.dispatch(ctx, delegates, res.Title, res.Body)
	consensus := Tally(outcomes)

	votes, messages := o.materialize(deb.ID, outcomes, consensus)

	deb.Status = DebateClosed
	deb.Verdict = consensus.Verdict
	deb.IntelligentVotes = consensus.IntelligentVotes
	deb.IdioticVotes = consensus.IdioticVotes
	deb.TotalVotes = consensus.TotalVotes
	deb.UpdatedAt = o.now().UTC()

	if err := o.store.CloseDebate(ctx, CloseParams{Debate: deb, Votes: votes, Messages: messages}); err != nil {
		return nil, fmt.Errorf("closing debate %s: %w", deb.ID, err)
	}

	o.bus.Publish(deb.ID, events.TypeDebateCompleted, map[string]any{
		"debateId":      deb.ID,
		"consensus":     consensus,
		"delegateCount": len(delegates),
	})
	o.logger.Info("debate completed",
		zap.String("debate_id", deb.ID),
		zap.String("verdict", consensus.Verdict),
		zap.Int("intelligent", consensus.IntelligentVotes),
		zap.Int("idiotic", consensus.IdioticVotes))

	if strings.TrimSpace(p.HumanVote) != "" {
		if _, err := o.CastVote(ctx, deb.ID, p.AuthorID, p.AuthorName, p.HumanVote); err != nil {
			o.logger.Warn("recording author vote failed", zap.String("debate_id", deb.ID), zap.Error(err))
		}
	}

	return o.store.GetDebateView(ctx, deb.ID)
}

func (o *Orchestrator) resolveResolution(ctx context.Context, p SubmitParams) (*Resolution, error) {
	if p.ResolutionID != "" {
		res, err := o.store.GetResolution(ctx, p.ResolutionID)
		if err != nil {
			return nil, err
		}
		if res.AuthorID != p.AuthorID {
			return nil, fmt.Errorf("%w: resolution belongs to another author", ErrForbidden)
		}
		if res.Status != ResolutionDraft {
			return nil, fmt.Errorf("%w: resolution %s has already been submitted", ErrInvalidInput, res.ID)
		}
		return res, nil
	}

	title := strings.TrimSpace(p.Title)
	body := strings.TrimSpace(p.Body)
	if title == "" || body == "" {
		return nil, fmt.Errorf("%w: title and body are required", ErrInvalidInput)
	}

	now := o.now().UTC()
	res := &Resolution{
		ID:        o.newID(),
		AuthorID:  p.AuthorID,
		Title:     title,
		Body:      body,
		Topic:     strings.TrimSpace(p.Topic),
		Status:    ResolutionSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateResolution(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// dispatch fans one evaluation call out per delegate and waits for every call
// to settle. Outcomes are indexed by dispatch order, not completion order, so
// the persisted transcript is reproducible across runs.
func (o *Orchestrator) dispatch(ctx context.Context, delegates []catalog.Delegate, title, body string) []Outcome {
	outcomes := make([]Outcome, len(delegates))
	var wg sync.WaitGroup
	for i, d := range delegates {
		wg.Add(1)
		go func(i int, d catalog.Delegate) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
			defer cancel()

			reply, raw, err := o.caller.Evaluate(callCtx, d.ModelID, title, body)
			out := Outcome{
				ModelID:     d.ModelID,
				DisplayName: d.DisplayName,
				Provider:    d.Provider,
				Source:      o.caller.Source(),
				RawOutput:   raw,
				Err:         err,
			}
			if err == nil {
				out.Reply = &reply
			} else {
				o.logger.Warn("delegate call failed",
					zap.String("model_id", d.ModelID),
					zap.Error(err))
			}
			outcomes[i] = out
		}(i, d)
	}
	wg.Wait()
	return outcomes
}

// materialize turns settled outcomes into the vote rows and transcript
// messages to be persisted, in dispatch order, plus the final system message.
func (o *Orchestrator) materialize(debateID string, outcomes []Outcome, consensus Consensus) ([]DelegateVote, []Message) {
	now := o.now().UTC()
	votes := make([]DelegateVote, 0, len(outcomes))
	messages := make([]Message, 0, len(outcomes)+1)

	for _, out := range outcomes {
		row := DelegateVote{
			ID:          o.newID(),
			DebateID:    debateID,
			ModelID:     out.ModelID,
			DisplayName: out.DisplayName,
			Provider:    out.Provider,
			Source:      out.Source,
			RawOutput:   out.RawOutput,
			CreatedAt:   now,
		}
		if out.Err != nil {
			reason := out.Err.Error()
			row.Error = &reason
			votes = append(votes, row)

			modelID := out.ModelID
			messages = append(messages, Message{
				ID:        o.newID(),
				DebateID:  debateID,
				ActorType: ActorDelegate,
				ActorID:   &modelID,
				ActorName: out.DisplayName,
				Stance:    StanceNeutral,
				Content:   fmt.Sprintf("Delegate failed to respond: %s", reason),
				CreatedAt: now,
			})
			continue
		}

		vote := out.Reply.Vote
		confidence := out.Reply.Confidence
		row.Vote = &vote
		row.Confidence = &confidence
		row.Argument = out.Reply.Argument
		row.Rebuttal = out.Reply.Rebuttal
		votes = append(votes, row)

		modelID := out.ModelID
		msgConfidence := confidence
		messages = append(messages, Message{
			ID:         o.newID(),
			DebateID:   debateID,
			ActorType:  ActorDelegate,
			ActorID:    &modelID,
			ActorName:  out.DisplayName,
			Stance:     StanceOf(vote),
			Content:    out.Reply.Argument,
			Confidence: &msgConfidence,
			CreatedAt:  now,
		})
	}

	messages = append(messages, *o.systemMessage(debateID, StanceOf(consensus.Verdict),
		fmt.Sprintf("Final verdict: %s (%d Intelligent / %d Idiotic, %d%% to %d%%)",
			consensus.Verdict, consensus.IntelligentVotes, consensus.IdioticVotes,
			consensus.IntelligentPct, consensus.IdioticPct)))
	return votes, messages
}

func (o *Orchestrator) systemMessage(debateID, stance, content string) *Message {
	return &Message{
		ID:        o.newID(),
		DebateID:  debateID,
		ActorType: ActorSystem,
		ActorName: "The Assembly",
		Stance:    stance,
		Content:   content,
		CreatedAt: o.now().UTC(),
	}
}

// CastVote records one user's alignment vote on a debate. The vote text goes
// through the same two-valued normalization as delegate votes, and a repeat
// vote from the same user overwrites the previous one.
func (o *Orchestrator) CastVote(ctx context.Context, debateID, userID, userName, vote string) (*HumanVote, error) {
	hv := &HumanVote{
		ID:        o.newID(),
		DebateID:  debateID,
		UserID:    userID,
		UserName:  userName,
		Vote:      NormalizeVote(vote),
		CreatedAt: o.now().UTC(),
	}
	if err := o.store.UpsertHumanVote(ctx, hv); err != nil {
		return nil, err
	}
	o.bus.Publish(debateID, events.TypeHumanVote, hv)
	return hv, nil
}

// SubmitArgument appends a human argument to the transcript. It never affects
// consensus.
func (o *Orchestrator) SubmitArgument(ctx context.Context, debateID, userID, userName, stance, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: argument content is required", ErrInvalidInput)
	}

	msg := &Message{
		ID:        o.newID(),
		DebateID:  debateID,
		ActorType: ActorHuman,
		ActorID:   &userID,
		ActorName: userName,
		Stance:    normalizeStance(stance),
		Content:   content,
		CreatedAt: o.now().UTC(),
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	o.bus.Publish(debateID, events.TypeHumanArgument, msg)
	return msg, nil
}

func normalizeStance(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(lowered, "idi"):
		return StanceIdiotic
	case strings.HasPrefix(lowered, "int"):
		return StanceIntelligent
	default:
		return StanceNeutral
	}
}
