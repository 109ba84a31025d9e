// Package server exposes the debate engine over HTTP: session issuance,
// draft management, debate submission and browsing, human votes and
// arguments, the delegate catalog, alignment stats, and a live event stream.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/verdict/internal/catalog"
	"github.com/lorenzotomasdiez/verdict/internal/debate"
	"github.com/lorenzotomasdiez/verdict/internal/events"
	"github.com/lorenzotomasdiez/verdict/internal/store"
)

// Server wires the HTTP surface over the orchestrator and store.
type Server struct {
	router       *gin.Engine
	orchestrator *debate.Orchestrator
	store        *store.Store
	catalog      *catalog.Catalog
	bus          *events.Bus
	signer       *TokenSigner
	logger       *zap.Logger
}

// New builds the server and registers all routes.
func New(orc *debate.Orchestrator, st *store.Store, cat *catalog.Catalog, bus *events.Bus, signer *TokenSigner, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	s := &Server{
		router:       router,
		orchestrator: orc,
		store:        st,
		catalog:      cat,
		bus:          bus,
		signer:       signer,
		logger:       logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.Group("/api")

	api.GET("/health", s.handleHealth)
	api.POST("/session", s.handleSession)
	api.GET("/delegates", s.handleListDelegates)

	api.GET("/debates", s.handleArchive)
	api.GET("/debates/:id", s.handleGetDebate)
	api.GET("/debates/:id/stream", s.handleStream)
	api.GET("/leaderboard", s.handleLeaderboard)
	api.GET("/users/:id/alignment", s.handleUserAlignment)

	authed := api.Group("", requireAuth(s.signer))
	authed.POST("/resolutions", s.handleCreateDraft)
	authed.GET("/resolutions", s.handleListDrafts)
	authed.GET("/resolutions/:id", s.handleGetResolution)
	authed.PUT("/resolutions/:id", s.handleUpdateDraft)
	authed.DELETE("/resolutions/:id", s.handleDeleteDraft)
	authed.POST("/debates", s.handleSubmitDebate)
	authed.POST("/debates/:id/votes", s.handleCastVote)
	authed.POST("/debates/:id/arguments", s.handleSubmitArgument)
}

// Handler returns the root http.Handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// renderError maps domain sentinels onto HTTP statuses.
func renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, debate.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, debate.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, debate.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
