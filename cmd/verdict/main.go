package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "verdict",
		Short: "Crowd-judged resolutions, voted on by an assembly of LLM delegates",
		Long:  "Submit a resolution, fan it out to a panel of LLM delegates, and collect a binary verdict: Intelligent or Idiotic. Runs as an HTTP service or as a one-off terminal debate.",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newDebateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
