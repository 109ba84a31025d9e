package debate

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/lorenzotomasdiez/verdict/internal/openrouter"
)

// CallError reports a failed delegate evaluation, isolated to one delegate.
type CallError struct {
	ModelID string
	Reason  string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("delegate %s: %s", e.ModelID, e.Reason)
}

// Caller issues one evaluation request to a delegate.
type Caller interface {
	// Evaluate returns the normalized reply plus the raw output for audit,
	// or a *CallError. One attempt, no retry.
	Evaluate(ctx context.Context, modelID, title, body string) (Reply, string, error)
	Source() string
}

// APICaller evaluates delegates through the OpenRouter completion endpoint.
type APICaller struct {
	client *openrouter.Client
}

// NewAPICaller creates an APICaller.
func NewAPICaller(client *openrouter.Client) *APICaller {
	return &APICaller{client: client}
}

// Evaluate implements Caller.
func (c *APICaller) Evaluate(ctx context.Context, modelID, title, body string) (Reply, string, error) {
	resp, err := c.client.ChatCompletion(ctx, modelID, buildMessages(title, body))
	if err != nil {
		return Reply{}, "", &CallError{ModelID: modelID, Reason: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return Reply{}, "", &CallError{ModelID: modelID, Reason: "empty completion response"}
	}
	raw := resp.Choices[0].Message.Content
	return ParseReply(raw), raw, nil
}

// Source implements Caller.
func (c *APICaller) Source() string { return "openrouter" }

// OfflineCaller is the deterministic stand-in used when no API credential is
// configured. It performs no I/O and produces byte-identical output for
// identical (modelID, title, body).
type OfflineCaller struct{}

const (
	offlineIntelligentArgument = "Offline evaluation: the resolution presents a coherent, actionable proposal whose benefits plausibly outweigh its costs."
	offlineIdioticArgument     = "Offline evaluation: the resolution overlooks obvious second-order effects and does not survive basic scrutiny."
	offlineIntelligentRebuttal = "A reasonable opponent would question whether the implementation costs are understated."
	offlineIdioticRebuttal     = "Proponents would argue the underlying intent is sound even where the details fail."
)

// Evaluate implements Caller.
func (OfflineCaller) Evaluate(_ context.Context, modelID, title, body string) (Reply, string, error) {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	seed := binary.BigEndian.Uint64(h.Sum(nil)[:8])

	reply := Reply{
		Vote:       VoteIntelligent,
		Confidence: int(55 + seed%40),
		Argument:   offlineIntelligentArgument,
		Rebuttal:   offlineIntelligentRebuttal,
	}
	if seed%2 == 1 {
		reply.Vote = VoteIdiotic
		reply.Argument = offlineIdioticArgument
		reply.Rebuttal = offlineIdioticRebuttal
	}

	raw, _ := json.Marshal(map[string]any{
		"vote":       reply.Vote,
		"confidence": reply.Confidence,
		"argument":   reply.Argument,
		"rebuttal":   reply.Rebuttal,
	})
	return reply, string(raw), nil
}

// Source implements Caller.
func (OfflineCaller) Source() string { return "offline" }
