package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/verdict/internal/catalog"
	"github.com/lorenzotomasdiez/verdict/internal/config"
	"github.com/lorenzotomasdiez/verdict/internal/debate"
	"github.com/lorenzotomasdiez/verdict/internal/events"
	"github.com/lorenzotomasdiez/verdict/internal/openrouter"
	"github.com/lorenzotomasdiez/verdict/internal/output"
	"github.com/lorenzotomasdiez/verdict/internal/store"
)

func newDebateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debate",
		Short: "Run a one-off debate from the terminal",
		RunE:  runDebate,
	}
	cmd.Flags().String("title", "", "Resolution title (required)")
	cmd.Flags().String("body", "", "Resolution body (required)")
	cmd.Flags().String("topic", "", "Optional topic tag")
	cmd.Flags().StringSlice("delegates", nil, "Delegate model IDs (default: top-ranked panel)")
	cmd.Flags().Bool("offline", false, "Force deterministic offline delegates")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("body")
	return cmd
}

func runDebate(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	body, _ := cmd.Flags().GetString("body")
	topic, _ := cmd.Flags().GetString("topic")
	delegateIDs, _ := cmd.Flags().GetStringSlice("delegates")
	offline, _ := cmd.Flags().GetBool("offline")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := zap.NewNop()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	var source catalog.Source
	var caller debate.Caller = debate.OfflineCaller{}
	if cfg.APIKey != "" && !offline {
		client := openrouter.NewClient(cfg.APIKey)
		source = client
		caller = debate.NewAPICaller(client)
	} else if !offline {
		fmt.Println("OPENROUTER_API_KEY not set, running offline delegates.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cat := catalog.New(source, st, cfg.CatalogTTL, logger)
	orc := debate.NewOrchestrator(st, cat, caller, events.NewBus(), logger, cfg.DelegateTimeout)

	view, err := orc.Submit(ctx, debate.SubmitParams{
		AuthorID:    "cli",
		AuthorName:  "CLI",
		Title:       title,
		Body:        body,
		Topic:       topic,
		DelegateIDs: delegateIDs,
	})
	if err != nil {
		return fmt.Errorf("debate: %w", err)
	}

	output.PrintBanner(view.Resolution, len(view.DelegateResults))
	for _, v := range view.DelegateResults {
		output.PrintDelegate(v)
	}
	output.PrintVerdict(view.Consensus)
	fmt.Printf("\nDebate %s saved to %s\n", view.ID, st.Path())
	return nil
}
