package debate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/verdict/internal/catalog"
)

// mockStore keeps everything in memory and can be told to fail the close.
type mockStore struct {
	resolutions map[string]*Resolution
	debates     map[string]*Debate
	votes       []DelegateVote
	messages    []Message
	humanVotes  map[string]*HumanVote
	closeErr    error
}

func newMockStore() *mockStore {
	return &mockStore{
		resolutions: make(map[string]*Resolution),
		debates:     make(map[string]*Debate),
		humanVotes:  make(map[string]*HumanVote),
	}
}

func (m *mockStore) CreateResolution(_ context.Context, res *Resolution) error {
	cp := *res
	m.resolutions[res.ID] = &cp
	return nil
}

func (m *mockStore) GetResolution(_ context.Context, id string) (*Resolution, error) {
	res, ok := m.resolutions[id]
	if !ok {
		return nil, fmt.Errorf("%w: resolution %s", ErrNotFound, id)
	}
	cp := *res
	return &cp, nil
}

func (m *mockStore) UpdateResolutionStatus(_ context.Context, id, status string) error {
	res, ok := m.resolutions[id]
	if !ok {
		return fmt.Errorf("%w: resolution %s", ErrNotFound, id)
	}
	res.Status = status
	return nil
}

func (m *mockStore) CreateDebate(_ context.Context, deb *Debate, opening *Message) error {
	cp := *deb
	m.debates[deb.ID] = &cp
	m.messages = append(m.messages, *opening)
	return nil
}

func (m *mockStore) CloseDebate(_ context.Context, close CloseParams) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	cp := *close.Debate
	m.debates[close.Debate.ID] = &cp
	m.votes = append(m.votes, close.Votes...)
	m.messages = append(m.messages, close.Messages...)
	if res, ok := m.resolutions[close.Debate.ResolutionID]; ok {
		res.Status = ResolutionClosed
	}
	return nil
}

func (m *mockStore) AppendMessage(_ context.Context, msg *Message) error {
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *mockStore) UpsertHumanVote(_ context.Context, vote *HumanVote) error {
	cp := *vote
	m.humanVotes[vote.DebateID+"|"+vote.UserID] = &cp
	return nil
}

func (m *mockStore) GetDebateView(_ context.Context, debateID string) (*View, error) {
	deb, ok := m.debates[debateID]
	if !ok {
		return nil, fmt.Errorf("%w: debate %s", ErrNotFound, debateID)
	}
	view := &View{
		ID:        deb.ID,
		CreatedAt: deb.CreatedAt,
		UpdatedAt: deb.UpdatedAt,
		Status:    deb.Status,
	}
	view.Consensus.Verdict = deb.Verdict
	view.Consensus.IntelligentVotes = deb.IntelligentVotes
	view.Consensus.IdioticVotes = deb.IdioticVotes
	view.Consensus.TotalVotes = deb.TotalVotes
	view.Consensus.IntelligentPct, view.Consensus.IdioticPct = Percentages(deb.IntelligentVotes, deb.IdioticVotes)
	if res, ok := m.resolutions[deb.ResolutionID]; ok {
		view.Resolution = *res
	}
	for _, v := range m.votes {
		if v.DebateID == debateID {
			view.DelegateResults = append(view.DelegateResults, v)
		}
	}
	for _, msg := range m.messages {
		if msg.DebateID == debateID {
			view.Messages = append(view.Messages, msg)
		}
	}
	for _, hv := range m.humanVotes {
		if hv.DebateID == debateID {
			view.HumanVotes = append(view.HumanVotes, *hv)
		}
	}
	return view, nil
}

// scriptedCaller returns canned replies or errors per model ID.
type scriptedCaller struct {
	replies map[string]Reply
	errs    map[string]error
}

func (s *scriptedCaller) Evaluate(_ context.Context, modelID, _, _ string) (Reply, string, error) {
	if err, ok := s.errs[modelID]; ok {
		return Reply{}, "", &CallError{ModelID: modelID, Reason: err.Error()}
	}
	reply := s.replies[modelID]
	return reply, "raw:" + modelID, nil
}

func (s *scriptedCaller) Source() string { return "test" }

// fakeCatalog hands back a fixed panel.
type fakeCatalog struct {
	delegates []catalog.Delegate
}

func (f *fakeCatalog) Resolve(_ context.Context, _ []string) []catalog.Delegate {
	return f.delegates
}

// recordingBus captures published events in order.
type recordingBus struct {
	events []struct {
		DebateID string
		Type     string
		Payload  any
	}
}

func (r *recordingBus) Publish(debateID, eventType string, payload any) {
	r.events = append(r.events, struct {
		DebateID string
		Type     string
		Payload  any
	}{debateID, eventType, payload})
}

func panel(ids ...string) []catalog.Delegate {
	delegates := make([]catalog.Delegate, len(ids))
	for i, id := range ids {
		delegates[i] = catalog.Delegate{ModelID: id, DisplayName: "Delegate " + id, Provider: "test", Rank: i + 1}
	}
	return delegates
}

func newTestOrchestrator(store Store, cat DelegateCatalog, caller Caller, bus Publisher) *Orchestrator {
	return NewOrchestrator(store, cat, caller, bus, zap.NewNop(), time.Second)
}

func TestSubmitPartialFailure(t *testing.T) {
	// A votes Intelligent at 80, B votes Idiotic at 60, C fails.
	store := newMockStore()
	caller := &scriptedCaller{
		replies: map[string]Reply{
			"a": {Vote: VoteIntelligent, Confidence: 80, Argument: "Strong case."},
			"b": {Vote: VoteIdiotic, Confidence: 60, Argument: "Weak case."},
		},
		errs: map[string]error{"c": errors.New("connection reset")},
	}
	bus := &recordingBus{}
	o := newTestOrchestrator(store, &fakeCatalog{delegates: panel("a", "b", "c")}, caller, bus)

	view, err := o.Submit(context.Background(), SubmitParams{
		AuthorID:   "user-1",
		AuthorName: "Lorenzo",
		Title:      "Ban single-use plastics",
		Body:       "They pollute everything.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if view.Status != DebateClosed {
		t.Errorf("expected closed debate, got %q", view.Status)
	}
	c := view.Consensus
	if c.Verdict != VoteIntelligent || c.IntelligentVotes != 1 || c.IdioticVotes != 1 || c.TotalVotes != 2 {
		t.Errorf("unexpected consensus: %+v", c)
	}
	if c.IntelligentPct != 50 || c.IdioticPct != 50 {
		t.Errorf("unexpected percentages: %+v", c)
	}

	if len(view.DelegateResults) != 3 {
		t.Fatalf("expected 3 delegate vote rows, got %d", len(view.DelegateResults))
	}
	var errored int
	for _, v := range view.DelegateResults {
		hasVote := v.Vote != nil
		hasErr := v.Error != nil
		if hasVote == hasErr {
			t.Errorf("exactly one of vote/error must be set: %+v", v)
		}
		if hasErr {
			errored++
		}
	}
	if errored != 1 {
		t.Errorf("expected 1 errored row, got %d", errored)
	}

	// Rows and messages follow dispatch order regardless of completion order.
	if view.DelegateResults[0].ModelID != "a" || view.DelegateResults[1].ModelID != "b" || view.DelegateResults[2].ModelID != "c" {
		t.Errorf("vote rows out of dispatch order: %+v", view.DelegateResults)
	}

	// Opening + 3 delegate messages + final verdict.
	if len(view.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(view.Messages))
	}
	if view.Messages[0].ActorType != ActorSystem {
		t.Errorf("first message should be the system opening, got %+v", view.Messages[0])
	}
	failMsg := view.Messages[3]
	if failMsg.Stance != StanceNeutral || !strings.Contains(failMsg.Content, "Delegate failed to respond") {
		t.Errorf("unexpected failure message: %+v", failMsg)
	}
	final := view.Messages[4]
	if final.ActorType != ActorSystem || !strings.Contains(final.Content, "Final verdict: Intelligent") {
		t.Errorf("unexpected final message: %+v", final)
	}

	if view.Resolution.Status != ResolutionClosed {
		t.Errorf("resolution should be closed, got %q", view.Resolution.Status)
	}

	if len(bus.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(bus.events))
	}
	if bus.events[0].Type != "debate_started" || bus.events[1].Type != "debate_completed" {
		t.Errorf("unexpected event sequence: %+v", bus.events)
	}
}

func TestSubmitAllDelegatesFail(t *testing.T) {
	store := newMockStore()
	caller := &scriptedCaller{errs: map[string]error{
		"a": errors.New("timeout"),
		"b": errors.New("timeout"),
		"c": errors.New("timeout"),
	}}
	o := newTestOrchestrator(store, &fakeCatalog{delegates: panel("a", "b", "c")}, caller, &recordingBus{})

	view, err := o.Submit(context.Background(), SubmitParams{
		AuthorID: "user-1", Title: "A doomed debate", Body: "Nobody answers.",
	})
	if err != nil {
		t.Fatalf("a debate with zero successful delegates must still close: %v", err)
	}
	if view.Status != DebateClosed {
		t.Errorf("expected closed, got %q", view.Status)
	}
	c := view.Consensus
	if c.Verdict != VoteIntelligent || c.TotalVotes != 0 || c.IntelligentPct != 50 || c.IdioticPct != 50 {
		t.Errorf("unexpected degenerate consensus: %+v", c)
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	store := newMockStore()
	o := newTestOrchestrator(store, &fakeCatalog{delegates: panel("a")}, OfflineCaller{}, &recordingBus{})

	for _, p := range []SubmitParams{
		{AuthorID: "u", Title: "", Body: "body"},
		{AuthorID: "u", Title: "title", Body: "   "},
	} {
		_, err := o.Submit(context.Background(), p)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for %+v, got %v", p, err)
		}
	}
	if len(store.resolutions) != 0 || len(store.debates) != 0 {
		t.Error("validation failure must not persist anything")
	}
}

func TestSubmitExistingDraft(t *testing.T) {
	store := newMockStore()
	store.resolutions["res-1"] = &Resolution{
		ID: "res-1", AuthorID: "user-1", Title: "From a draft", Body: "Body", Status: ResolutionDraft,
	}
	o := newTestOrchestrator(store, &fakeCatalog{delegates: panel("a")}, OfflineCaller{}, &recordingBus{})

	view, err := o.Submit(context.Background(), SubmitParams{ResolutionID: "res-1", AuthorID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Resolution.ID != "res-1" || view.Resolution.Status != ResolutionClosed {
		t.Errorf("unexpected resolution: %+v", view.Resolution)
	}
}

func TestSubmitDraftAuthorMismatch(t *testing.T) {
	store := newMockStore()
	store.resolutions["res-1"] = &Resolution{ID: "res-1", AuthorID: "someone-else", Status: ResolutionDraft}
	o := newTestOrchestrator(store, &fakeCatalog{delegates: panel("a")}, OfflineCaller{}, &recordingBus{})

	_, err := o.Submit(context.Background(), SubmitParams{ResolutionID: "res-1", AuthorID: "user-1"})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestSubmitAlreadySubmittedResolution(t *testing.T) {
	store := newMockStore()
	store.resolutions["res-1"] = &Resolution{ID: "res-1", AuthorID: "user-1", Status: ResolutionClosed}
	o := newTestOrchestrator(store, &fakeCatalog{delegates: panel("a")}, OfflineCaller{}, &recordingBus{})

	_, err := o.Submit(context.Background(), SubmitParams{ResolutionID: "res-1", AuthorID: "user-1"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSubmitPersistenceFailureLeavesDebateActive(t *testing.T) {
	store := newMockStore()
	store.closeErr = errors.New("disk full")
	o := newTestOrchestrator(store, &fakeCatalog{delegates: panel("a")}, OfflineCaller{}, &recordingBus{})

	_, err := o.Submit(context.Background(), SubmitParams{
		AuthorID: "user-1", Title: "Doomed close", Body: "Body",
	})
	if err == nil {
		t.Fatal("expected persistence failure to surface")
	}
	for _, deb := range store.debates {
		if deb.Status != DebateActive {
			t.Errorf("debate must stay active after a failed close, got %q", deb.Status)
		}
	}
	if len(store.votes) != 0 {
		t.Error("no partial vote rows may be visible after rollback")
	}
}

func TestSubmitRecordsAuthorVote(t *testing.T) {
	store := newMockStore()
	o := newTestOrchestrator(store, &fakeCatalog{delegates: panel("a")}, OfflineCaller{}, &recordingBus{})

	view, err := o.Submit(context.Background(), SubmitParams{
		AuthorID: "user-1", AuthorName: "Lorenzo",
		Title: "With a vote", Body: "Body", HumanVote: "idiotic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.HumanVotes) != 1 {
		t.Fatalf("expected the author vote in the view, got %d", len(view.HumanVotes))
	}
	if view.HumanVotes[0].Vote != VoteIdiotic {
		t.Errorf("expected normalized Idiotic, got %q", view.HumanVotes[0].Vote)
	}
}

func TestCastVoteNormalizesAndPublishes(t *testing.T) {
	store := newMockStore()
	bus := &recordingBus{}
	o := newTestOrchestrator(store, &fakeCatalog{}, OfflineCaller{}, bus)

	hv, err := o.CastVote(context.Background(), "debate-1", "user-1", "Lorenzo", "intelligent-ish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hv.Vote != VoteIntelligent {
		t.Errorf("'intelligent-ish' has no idi prefix, expected Intelligent, got %q", hv.Vote)
	}
	if len(bus.events) != 1 || bus.events[0].Type != "human_vote" {
		t.Errorf("expected human_vote event, got %+v", bus.events)
	}
}

func TestCastVoteOverwrites(t *testing.T) {
	store := newMockStore()
	o := newTestOrchestrator(store, &fakeCatalog{}, OfflineCaller{}, &recordingBus{})
	ctx := context.Background()

	o.CastVote(ctx, "debate-1", "user-1", "Lorenzo", "Intelligent")
	o.CastVote(ctx, "debate-1", "user-1", "Lorenzo", "Idiotic")

	if len(store.humanVotes) != 1 {
		t.Fatalf("expected a single vote per (debate,user), got %d", len(store.humanVotes))
	}
	if store.humanVotes["debate-1|user-1"].Vote != VoteIdiotic {
		t.Error("second vote should overwrite the first")
	}
}

func TestSubmitArgument(t *testing.T) {
	store := newMockStore()
	bus := &recordingBus{}
	o := newTestOrchestrator(store, &fakeCatalog{}, OfflineCaller{}, bus)

	msg, err := o.SubmitArgument(context.Background(), "debate-1", "user-1", "Lorenzo", "IDIOTIC", "This is clearly a bad idea.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ActorType != ActorHuman || msg.Stance != StanceIdiotic {
		t.Errorf("unexpected message: %+v", msg)
	}
	if len(bus.events) != 1 || bus.events[0].Type != "human_argument" {
		t.Errorf("expected human_argument event, got %+v", bus.events)
	}

	if _, err := o.SubmitArgument(context.Background(), "debate-1", "user-1", "Lorenzo", "", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty content, got %v", err)
	}
}

func TestSubmitArgumentStanceDefaultsToNeutral(t *testing.T) {
	store := newMockStore()
	o := newTestOrchestrator(store, &fakeCatalog{}, OfflineCaller{}, &recordingBus{})

	msg, err := o.SubmitArgument(context.Background(), "debate-1", "user-1", "Lorenzo", "undecided", "Hmm.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Stance != StanceNeutral {
		t.Errorf("expected neutral stance, got %q", msg.Stance)
	}
}
