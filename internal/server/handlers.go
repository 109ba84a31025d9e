package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lorenzotomasdiez/verdict/internal/debate"
	"github.com/lorenzotomasdiez/verdict/internal/store"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSession mints an identity for a display name and signs a token for
// it. Repeat calls with a userId refresh the name while keeping the identity.
func (s *Server) handleSession(c *gin.Context) {
	var req struct {
		Name   string `json:"name" binding:"required"`
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	id := Identity{UserID: req.UserID, Name: strings.TrimSpace(req.Name)}
	if id.UserID == "" {
		id.UserID = uuid.NewString()
	}
	if err := s.store.EnsureUser(c.Request.Context(), id.UserID, id.Name); err != nil {
		renderError(c, err)
		return
	}

	token, err := s.signer.Issue(id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": id})
}

func (s *Server) handleListDelegates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"delegates": s.catalog.Entries(c.Request.Context())})
}

type draftRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
	Topic string `json:"topic"`
}

func (s *Server) handleCreateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and body are required"})
		return
	}

	ident := identityFrom(c)
	now := time.Now().UTC()
	res := &debate.Resolution{
		ID:        uuid.NewString(),
		AuthorID:  ident.UserID,
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
		Topic:     strings.TrimSpace(req.Topic),
		Status:    debate.ResolutionDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if res.Title == "" || res.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and body are required"})
		return
	}
	if err := s.store.CreateResolution(c.Request.Context(), res); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleListDrafts(c *gin.Context) {
	drafts, err := s.store.ListDrafts(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		renderError(c, err)
		return
	}
	if drafts == nil {
		drafts = []debate.Resolution{}
	}
	c.JSON(http.StatusOK, gin.H{"drafts": drafts})
}

// handleGetResolution returns one of the caller's own resolutions, draft or
// otherwise. Other authors' resolutions are indistinguishable from missing.
func (s *Server) handleGetResolution(c *gin.Context) {
	res, err := s.store.GetResolution(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	if res.AuthorID != identityFrom(c).UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "resolution not found"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleUpdateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and body are required"})
		return
	}

	res := &debate.Resolution{
		ID:       c.Param("id"),
		AuthorID: identityFrom(c).UserID,
		Title:    strings.TrimSpace(req.Title),
		Body:     strings.TrimSpace(req.Body),
		Topic:    strings.TrimSpace(req.Topic),
	}
	if err := s.store.UpdateDraft(c.Request.Context(), res); err != nil {
		renderError(c, err)
		return
	}
	updated, err := s.store.GetResolution(c.Request.Context(), res.ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteDraft(c *gin.Context) {
	if err := s.store.DeleteDraft(c.Request.Context(), c.Param("id"), identityFrom(c).UserID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type submitDebateRequest struct {
	ResolutionID string   `json:"resolutionId"`
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	Topic        string   `json:"topic"`
	DelegateIDs  []string `json:"delegateIds"`
	Vote         string   `json:"vote"`
}

// handleSubmitDebate runs a full debate synchronously and returns the closed
// view. Clients watching the stream endpoint see start and completion events
// while this request is in flight.
func (s *Server) handleSubmitDebate(c *gin.Context) {
	var req submitDebateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ident := identityFrom(c)
	view, err := s.orchestrator.Submit(c.Request.Context(), debate.SubmitParams{
		ResolutionID: req.ResolutionID,
		AuthorID:     ident.UserID,
		AuthorName:   ident.Name,
		Title:        req.Title,
		Body:         req.Body,
		Topic:        req.Topic,
		DelegateIDs:  req.DelegateIDs,
		HumanVote:    req.Vote,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) handleArchive(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := s.store.ListClosedDebates(c.Request.Context(), limit, offset)
	if err != nil {
		renderError(c, err)
		return
	}
	if items == nil {
		items = []store.ArchiveItem{}
	}
	c.JSON(http.StatusOK, gin.H{"debates": items})
}

func (s *Server) handleGetDebate(c *gin.Context) {
	view, err := s.store.GetDebateView(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type voteRequest struct {
	Vote string `json:"vote" binding:"required"`
}

func (s *Server) handleCastVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vote is required"})
		return
	}

	// Reject votes on debates that do not exist before writing anything.
	if _, err := s.store.GetDebateView(c.Request.Context(), c.Param("id")); err != nil {
		renderError(c, err)
		return
	}

	ident := identityFrom(c)
	vote, err := s.orchestrator.CastVote(c.Request.Context(), c.Param("id"), ident.UserID, ident.Name, req.Vote)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vote)
}

type argumentRequest struct {
	Stance  string `json:"stance"`
	Content string `json:"content" binding:"required"`
}

func (s *Server) handleSubmitArgument(c *gin.Context) {
	var req argumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	if _, err := s.store.GetDebateView(c.Request.Context(), c.Param("id")); err != nil {
		renderError(c, err)
		return
	}

	ident := identityFrom(c)
	msg, err := s.orchestrator.SubmitArgument(c.Request.Context(), c.Param("id"), ident.UserID, ident.Name, req.Stance, req.Content)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	entries, err := s.store.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		renderError(c, err)
		return
	}
	if entries == nil {
		entries = []store.LeaderboardEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (s *Server) handleUserAlignment(c *gin.Context) {
	items, err := s.store.UserAlignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	if items == nil {
		items = []store.AlignmentItem{}
	}
	c.JSON(http.StatusOK, gin.H{"history": items})
}
