package debate

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultConfidence = 55
	defaultArgument   = "No argument returned."
)

var (
	idioticTokenRe     = regexp.MustCompile(`(?i)idiotic`)
	intelligentTokenRe = regexp.MustCompile(`(?i)intelligent`)
	percentRe          = regexp.MustCompile(`(\d{1,3})\s*%`)
)

// Reply is a delegate's output normalized into a vote record.
type Reply struct {
	Vote       string
	Confidence int
	Argument   string
	Rebuttal   string
}

// ParseReply converts raw delegate output into a Reply. It never fails:
// strict JSON is tried first, then the first-{ to last-} substring, then
// regex heuristics over the plain text.
func ParseReply(raw string) Reply {
	trimmed := strings.TrimSpace(raw)

	if obj, ok := parseJSONObject(trimmed); ok {
		return replyFromJSON(obj)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if obj, ok := parseJSONObject(trimmed[start : end+1]); ok {
			return replyFromJSON(obj)
		}
	}

	return replyFromText(trimmed)
}

func parseJSONObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func replyFromJSON(obj map[string]any) Reply {
	r := Reply{
		Vote:       NormalizeVote(stringField(obj, "vote", "verdict")),
		Confidence: confidenceField(obj),
		Argument:   stringField(obj, "argument", "reasoning"),
		Rebuttal:   stringField(obj, "rebuttal", "counterpoint"),
	}
	if r.Argument == "" {
		r.Argument = defaultArgument
	}
	return r
}

func replyFromText(text string) Reply {
	vote := VoteIntelligent
	if idioticTokenRe.MatchString(text) {
		vote = VoteIdiotic
	} else if intelligentTokenRe.MatchString(text) {
		vote = VoteIntelligent
	}

	confidence := defaultConfidence
	if m := percentRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			confidence = clampConfidence(n)
		}
	}

	argument := text
	if argument == "" {
		argument = defaultArgument
	}
	return Reply{Vote: vote, Confidence: confidence, Argument: argument}
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func confidenceField(obj map[string]any) int {
	for _, key := range []string{"confidence"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return clampConfidence(int(n))
		case string:
			if parsed, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(n), "%")); err == nil {
				return clampConfidence(parsed)
			}
		}
	}
	return defaultConfidence
}

func clampConfidence(n int) int {
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}
