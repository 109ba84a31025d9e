// Package output renders debate results for the terminal.
package output

import (
	"fmt"

	"github.com/lorenzotomasdiez/verdict/internal/debate"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// Colorize wraps s with an ANSI color code and reset.
func Colorize(color, s string) string { return color + s + ansiReset }

// Bold wraps s with ANSI bold and reset.
func Bold(s string) string { return ansiBold + s + ansiReset }

func voteColor(vote string) string {
	if debate.NormalizeVote(vote) == debate.VoteIdiotic {
		return ansiRed
	}
	return ansiGreen
}

// PrintBanner prints the resolution header before delegate cards.
func PrintBanner(res debate.Resolution, delegates int) {
	fmt.Printf("\n%s\n", Colorize(ansiBold+ansiCyan, "=== Resolution: "+res.Title+" ==="))
	fmt.Printf("%s\n\n", res.Body)
	fmt.Printf("An assembly of %d delegates will now vote.\n\n", delegates)
}

// PrintDelegate prints one delegate's vote card.
func PrintDelegate(v debate.DelegateVote) {
	if v.Error != nil {
		fmt.Printf("%s %s: %s\n",
			Colorize(ansiYellow, "[failed]"),
			Bold(v.DisplayName),
			*v.Error,
		)
		return
	}
	vote := ""
	if v.Vote != nil {
		vote = *v.Vote
	}
	confidence := 0
	if v.Confidence != nil {
		confidence = *v.Confidence
	}
	fmt.Printf("%s %s (%d%%): %s\n",
		Colorize(voteColor(vote), "["+vote+"]"),
		Bold(v.DisplayName),
		confidence,
		v.Argument,
	)
	if v.Rebuttal != "" {
		fmt.Printf("  rebuttal: %s\n", v.Rebuttal)
	}
}

// PrintVerdict prints the consensus summary.
func PrintVerdict(c debate.Consensus) {
	fmt.Printf("\nVerdict: %s\n", Colorize(ansiBold+voteColor(c.Verdict), c.Verdict))
	fmt.Printf("Votes: %s Intelligent / %s Idiotic (%d counted)\n",
		Colorize(ansiGreen, fmt.Sprintf("%d", c.IntelligentVotes)),
		Colorize(ansiRed, fmt.Sprintf("%d", c.IdioticVotes)),
		c.TotalVotes,
	)
	fmt.Printf("Split: %s\n", Colorize(ansiYellow, fmt.Sprintf("%d%% to %d%%", c.IntelligentPct, c.IdioticPct)))
}
