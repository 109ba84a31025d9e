package debate

import "math"

// Outcome is one settled delegate call: either a parsed Reply or an error.
type Outcome struct {
	ModelID     string
	DisplayName string
	Provider    string
	Source      string
	Reply       *Reply
	RawOutput   string
	Err         error
}

// Tally aggregates settled delegate outcomes into an assembly-wide verdict.
// Failed delegates are excluded from every count. A tie on vote counts
// (including 0-0) is broken by summed confidence per side; a full tie
// defaults to Intelligent.
func Tally(outcomes []Outcome) Consensus {
	var (
		intelligent, idiotic             int
		intelligentWeight, idioticWeight int
	)
	for _, o := range outcomes {
		if o.Err != nil || o.Reply == nil {
			continue
		}
		if o.Reply.Vote == VoteIdiotic {
			idiotic++
			idioticWeight += o.Reply.Confidence
		} else {
			intelligent++
			intelligentWeight += o.Reply.Confidence
		}
	}

	verdict := VoteIntelligent
	switch {
	case idiotic > intelligent:
		verdict = VoteIdiotic
	case idiotic == intelligent && idioticWeight > intelligentWeight:
		verdict = VoteIdiotic
	}

	total := intelligent + idiotic
	intelligentPct, idioticPct := Percentages(intelligent, idiotic)

	return Consensus{
		Verdict:          verdict,
		IntelligentVotes: intelligent,
		IdioticVotes:     idiotic,
		TotalVotes:       total,
		IntelligentPct:   intelligentPct,
		IdioticPct:       idioticPct,
	}
}

// Percentages computes the two tally percentages from the vote counts. The
// idiotic share is derived as the complement so the pair always sums to 100.
func Percentages(intelligent, idiotic int) (int, int) {
	total := intelligent + idiotic
	if total == 0 {
		return 50, 50
	}
	intelligentPct := int(math.Round(float64(intelligent) / float64(total) * 100))
	return intelligentPct, 100 - intelligentPct
}
