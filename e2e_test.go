package verdict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/verdict/internal/catalog"
	"github.com/lorenzotomasdiez/verdict/internal/debate"
	"github.com/lorenzotomasdiez/verdict/internal/events"
	"github.com/lorenzotomasdiez/verdict/internal/openrouter"
	"github.com/lorenzotomasdiez/verdict/internal/server"
	"github.com/lorenzotomasdiez/verdict/internal/store"
)

// TestE2EFullDebateWithMockUpstream drives the whole stack against a mocked
// OpenRouter: catalog sync, session issuance, debate submission with real API
// delegates, consensus, persistence, and archive readback.
func TestE2EFullDebateWithMockUpstream(t *testing.T) {
	var chatCalls atomic.Int32

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key-123" {
			t.Errorf("bad auth header: %s", auth)
		}

		switch r.URL.Path {
		case "/models":
			json.NewEncoder(w).Encode(openrouter.ModelsResponse{Data: []openrouter.Model{
				{ID: "alpha/optimist", Name: "Optimist", ContextLength: 8192},
				{ID: "beta/optimist-2", Name: "Optimist II", ContextLength: 8192},
				{ID: "gamma/pessimist", Name: "Pessimist", ContextLength: 8192},
			}})
		case "/chat/completions":
			chatCalls.Add(1)
			var req openrouter.ChatRequest
			json.NewDecoder(r.Body).Decode(&req)

			vote := "Intelligent"
			confidence := 80
			if req.Model == "gamma/pessimist" {
				vote = "Idiotic"
				confidence = 95
			}
			content := fmt.Sprintf(`{"vote":%q,"confidence":%d,"argument":"Because.","rebuttal":"Unless."}`, vote, confidence)
			json.NewEncoder(w).Encode(openrouter.ChatResponse{
				Choices: []openrouter.Choice{
					{Message: openrouter.Message{Role: "assistant", Content: content}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	logger := zap.NewNop()
	st, err := store.New(filepath.Join(t.TempDir(), "verdict.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	client := openrouter.NewClientWithBaseURL("test-key-123", upstream.URL)
	cat := catalog.New(client, st, time.Hour, logger)
	bus := events.NewBus()
	orc := debate.NewOrchestrator(st, cat, debate.NewAPICaller(client), bus, logger, 10*time.Second)
	srv := server.New(orc, st, cat, bus, server.NewTokenSigner("e2e-secret"), logger)

	app := httptest.NewServer(srv.Handler())
	defer app.Close()

	// Session.
	resp, err := http.Post(app.URL+"/api/session", "application/json",
		bytes.NewReader([]byte(`{"name":"E2E"}`)))
	if err != nil {
		t.Fatalf("session request: %v", err)
	}
	var session struct {
		Token string `json:"token"`
		User  struct {
			UserID string `json:"userId"`
		} `json:"user"`
	}
	json.NewDecoder(resp.Body).Decode(&session)
	resp.Body.Close()
	if session.Token == "" {
		t.Fatal("no token issued")
	}

	// The catalog reflects the upstream model list.
	resp, err = http.Get(app.URL + "/api/delegates")
	if err != nil {
		t.Fatalf("delegates request: %v", err)
	}
	var delegates struct {
		Delegates []catalog.Delegate `json:"delegates"`
	}
	json.NewDecoder(resp.Body).Decode(&delegates)
	resp.Body.Close()
	if len(delegates.Delegates) != 3 {
		t.Fatalf("expected 3 synced delegates, got %d", len(delegates.Delegates))
	}

	// Submit a debate over the full synced panel.
	payload := `{"title":"Outlaw lawn ornaments","body":"They serve no one.","delegateIds":["alpha/optimist","beta/optimist-2","gamma/pessimist"],"vote":"idiotic"}`
	req, _ := http.NewRequest(http.MethodPost, app.URL+"/api/debates", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	var view debate.View
	json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()

	if got := chatCalls.Load(); got != 3 {
		t.Errorf("expected 3 delegate calls, got %d", got)
	}
	if view.Status != debate.DebateClosed {
		t.Errorf("debate status = %q, want closed", view.Status)
	}
	// Two Intelligent at 80 vs one Idiotic at 95: count wins.
	if view.Consensus.Verdict != debate.VoteIntelligent {
		t.Errorf("verdict = %q, want Intelligent", view.Consensus.Verdict)
	}
	if view.Consensus.IntelligentPct != 67 || view.Consensus.IdioticPct != 33 {
		t.Errorf("split = %d/%d, want 67/33", view.Consensus.IntelligentPct, view.Consensus.IdioticPct)
	}
	if len(view.DelegateResults) != 3 {
		t.Fatalf("delegate results = %d, want 3", len(view.DelegateResults))
	}
	for _, v := range view.DelegateResults {
		if v.Source != "openrouter" {
			t.Errorf("delegate %s source = %q, want openrouter", v.ModelID, v.Source)
		}
	}
	if len(view.HumanVotes) != 1 || view.HumanVotes[0].Vote != debate.VoteIdiotic {
		t.Errorf("author vote not recorded: %+v", view.HumanVotes)
	}

	// The debate shows up in the archive.
	resp, err = http.Get(app.URL + "/api/debates")
	if err != nil {
		t.Fatalf("archive request: %v", err)
	}
	var archive struct {
		Debates []store.ArchiveItem `json:"debates"`
	}
	json.NewDecoder(resp.Body).Decode(&archive)
	resp.Body.Close()
	if len(archive.Debates) != 1 || archive.Debates[0].DebateID != view.ID {
		t.Fatalf("archive = %+v, want the closed debate", archive.Debates)
	}

	// Contrarian alignment: the author voted against the verdict.
	resp, err = http.Get(app.URL + "/api/users/" + session.User.UserID + "/alignment")
	if err != nil {
		t.Fatalf("alignment request: %v", err)
	}
	var history struct {
		History []store.AlignmentItem `json:"history"`
	}
	json.NewDecoder(resp.Body).Decode(&history)
	resp.Body.Close()
	if len(history.History) != 1 || history.History[0].Aligned {
		t.Fatalf("alignment history = %+v, want one misaligned vote", history.History)
	}
}

// TestE2EPartialDelegateFailure verifies one failing delegate never aborts a
// debate: its failure is recorded and the survivors decide the verdict.
func TestE2EPartialDelegateFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			json.NewEncoder(w).Encode(openrouter.ModelsResponse{Data: []openrouter.Model{
				{ID: "alpha/solid", Name: "Solid"},
				{ID: "beta/flaky", Name: "Flaky"},
			}})
		case "/chat/completions":
			var req openrouter.ChatRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Model == "beta/flaky" {
				http.Error(w, "model overloaded", http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(openrouter.ChatResponse{
				Choices: []openrouter.Choice{
					{Message: openrouter.Message{Role: "assistant", Content: `{"vote":"Idiotic","confidence":70,"argument":"No."}`}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	logger := zap.NewNop()
	st, err := store.New(filepath.Join(t.TempDir(), "verdict.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	client := openrouter.NewClientWithBaseURL("k", upstream.URL)
	cat := catalog.New(client, st, time.Hour, logger)
	orc := debate.NewOrchestrator(st, cat, debate.NewAPICaller(client), events.NewBus(), logger, 10*time.Second)

	view, err := orc.Submit(t.Context(), debate.SubmitParams{
		AuthorID:    "author",
		AuthorName:  "Author",
		Title:       "Some resolution",
		Body:        "Some body.",
		DelegateIDs: []string{"alpha/solid", "beta/flaky"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if view.Consensus.TotalVotes != 1 {
		t.Errorf("counted votes = %d, want 1 (failures excluded)", view.Consensus.TotalVotes)
	}
	if view.Consensus.Verdict != debate.VoteIdiotic {
		t.Errorf("verdict = %q, want Idiotic", view.Consensus.Verdict)
	}

	var failed int
	for _, v := range view.DelegateResults {
		if v.Error != nil {
			failed++
			if v.Vote != nil {
				t.Error("a failed delegate must not carry a vote")
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed delegates = %d, want 1", failed)
	}
}
