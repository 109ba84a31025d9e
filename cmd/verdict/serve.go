package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lorenzotomasdiez/verdict/internal/catalog"
	"github.com/lorenzotomasdiez/verdict/internal/config"
	"github.com/lorenzotomasdiez/verdict/internal/debate"
	"github.com/lorenzotomasdiez/verdict/internal/events"
	"github.com/lorenzotomasdiez/verdict/internal/openrouter"
	"github.com/lorenzotomasdiez/verdict/internal/server"
	"github.com/lorenzotomasdiez/verdict/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	var source catalog.Source
	var caller debate.Caller = debate.OfflineCaller{}
	if cfg.APIKey != "" {
		client := openrouter.NewClient(cfg.APIKey)
		source = client
		caller = debate.NewAPICaller(client)
	} else {
		logger.Warn("OPENROUTER_API_KEY not set, delegates run offline")
	}

	cat := catalog.New(source, st, cfg.CatalogTTL, logger)
	bus := events.NewBus()
	orc := debate.NewOrchestrator(st, cat, caller, bus, logger, cfg.DelegateTimeout)
	signer := server.NewTokenSigner(cfg.TokenSecret)
	srv := server.New(orc, st, cat, bus, signer, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, cfg.Addr)
	})
	g.Go(func() error {
		return cat.SyncLoop(ctx, cfg.CatalogSync)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}
