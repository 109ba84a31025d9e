// Package catalog maintains the list of delegates available for debates.
//
// The catalog is refreshed from OpenRouter, cached with an explicit
// expiration, persisted so a restart can survive an upstream outage, and
// backed by a small builtin list so debate creation is never blocked by a
// catalog lookup failure.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/verdict/internal/openrouter"
)

const (
	// maxSelection caps how many delegates one debate may dispatch to.
	maxSelection = 6
	// defaultSelection is the fallback panel size when the caller's list is
	// empty after filtering.
	defaultSelection = 4
)

// Delegate is one catalog entry.
type Delegate struct {
	ModelID         string `json:"modelId"`
	DisplayName     string `json:"displayName"`
	Provider        string `json:"provider"`
	Rank            int    `json:"rank"`
	ContextLength   int64  `json:"contextLength"`
	PromptPrice     string `json:"promptPrice"`
	CompletionPrice string `json:"completionPrice"`
	WeeklyTokens    int64  `json:"weeklyTokens"`
}

// Source lists models from the upstream catalog provider.
type Source interface {
	ListModels(ctx context.Context) ([]openrouter.Model, error)
}

// Persister stores the last good catalog so it outlives upstream outages.
type Persister interface {
	SaveDelegates(ctx context.Context, delegates []Delegate) error
	LoadDelegates(ctx context.Context) ([]Delegate, error)
}

// Catalog is a time-bounded cache of delegates.
type Catalog struct {
	source  Source
	persist Persister // may be nil
	ttl     time.Duration
	logger  *zap.Logger

	mu        sync.RWMutex
	entries   []Delegate
	byID      map[string]Delegate
	expiresAt time.Time

	now func() time.Time
}

// New creates a Catalog. source may be nil (offline mode), in which case the
// builtin list is used. persist may be nil.
func New(source Source, persist Persister, ttl time.Duration, logger *zap.Logger) *Catalog {
	return &Catalog{
		source:  source,
		persist: persist,
		ttl:     ttl,
		logger:  logger,
		byID:    make(map[string]Delegate),
		now:     time.Now,
	}
}

// Entries returns the current catalog, refreshing it first when expired.
// It always returns a non-empty list.
func (c *Catalog) Entries(ctx context.Context) []Delegate {
	c.mu.RLock()
	fresh := len(c.entries) > 0 && c.now().Before(c.expiresAt)
	entries := c.entries
	c.mu.RUnlock()
	if fresh {
		return entries
	}
	return c.refresh(ctx)
}

// Lookup finds a delegate by model ID in the current catalog.
func (c *Catalog) Lookup(ctx context.Context, modelID string) (Delegate, bool) {
	c.Entries(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[modelID]
	return d, ok
}

// Resolve dedupes ids, drops unknown entries, and caps the panel at
// maxSelection. An empty result falls back to the top defaultSelection
// delegates by rank.
func (c *Catalog) Resolve(ctx context.Context, ids []string) []Delegate {
	entries := c.Entries(ctx)
	byID := make(map[string]Delegate, len(entries))
	for _, d := range entries {
		byID[d.ModelID] = d
	}

	seen := make(map[string]bool, len(ids))
	var selected []Delegate
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		d, ok := byID[id]
		if !ok {
			continue
		}
		selected = append(selected, d)
		if len(selected) == maxSelection {
			break
		}
	}

	if len(selected) == 0 {
		return c.Top(ctx, defaultSelection)
	}
	return selected
}

// Top returns the n best-ranked delegates.
func (c *Catalog) Top(ctx context.Context, n int) []Delegate {
	entries := c.Entries(ctx)
	if n > len(entries) {
		n = len(entries)
	}
	top := make([]Delegate, n)
	copy(top, entries[:n])
	return top
}

// refresh pulls the catalog from the source, falling back to the persisted
// copy and then the builtin list. The cache keeps serving stale entries while
// every fallback fails, so lookups never come back empty.
func (c *Catalog) refresh(ctx context.Context) []Delegate {
	if c.source != nil {
		models, err := c.source.ListModels(ctx)
		if err == nil && len(models) > 0 {
			entries := fromModels(models)
			c.install(entries)
			if c.persist != nil {
				if perr := c.persist.SaveDelegates(ctx, entries); perr != nil {
					c.logger.Warn("persisting delegate catalog failed", zap.Error(perr))
				}
			}
			return entries
		}
		if err != nil {
			c.logger.Warn("delegate catalog refresh failed", zap.Error(err))
		}
	}

	if c.persist != nil {
		cached, err := c.persist.LoadDelegates(ctx)
		if err != nil {
			c.logger.Warn("loading cached delegate catalog failed", zap.Error(err))
		} else if len(cached) > 0 {
			c.install(cached)
			return cached
		}
	}

	c.mu.RLock()
	existing := c.entries
	c.mu.RUnlock()
	if len(existing) > 0 {
		return existing
	}

	builtin := BuiltinDelegates()
	c.install(builtin)
	return builtin
}

func (c *Catalog) install(entries []Delegate) {
	byID := make(map[string]Delegate, len(entries))
	for _, d := range entries {
		byID[d.ModelID] = d
	}
	c.mu.Lock()
	c.entries = entries
	c.byID = byID
	c.expiresAt = c.now().Add(c.ttl)
	c.mu.Unlock()
}

// SyncLoop refreshes the catalog on an interval until ctx is cancelled.
func (c *Catalog) SyncLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

// fromModels converts upstream models into ranked catalog entries. Rank is the
// upstream ordering; OpenRouter lists models by popularity.
func fromModels(models []openrouter.Model) []Delegate {
	entries := make([]Delegate, 0, len(models))
	for i, m := range models {
		d := Delegate{
			ModelID:       m.ID,
			DisplayName:   m.Name,
			Provider:      providerOf(m.ID),
			Rank:          i + 1,
			ContextLength: m.ContextLength,
		}
		if m.Pricing != nil {
			d.PromptPrice = m.Pricing.Prompt
			d.CompletionPrice = m.Pricing.Completion
		}
		entries = append(entries, d)
	}
	return entries
}

func providerOf(modelID string) string {
	if provider, _, ok := strings.Cut(modelID, "/"); ok {
		return provider
	}
	return modelID
}

// BuiltinDelegates is the last-resort panel used when both the upstream
// catalog and the persisted copy are unavailable.
func BuiltinDelegates() []Delegate {
	return []Delegate{
		{ModelID: "openai/gpt-4o-mini", DisplayName: "GPT-4o Mini", Provider: "openai", Rank: 1, ContextLength: 128000, PromptPrice: "0.00000015", CompletionPrice: "0.0000006", WeeklyTokens: 981_000_000},
		{ModelID: "anthropic/claude-3.5-haiku", DisplayName: "Claude 3.5 Haiku", Provider: "anthropic", Rank: 2, ContextLength: 200000, PromptPrice: "0.0000008", CompletionPrice: "0.000004", WeeklyTokens: 742_000_000},
		{ModelID: "google/gemini-2.0-flash-001", DisplayName: "Gemini 2.0 Flash", Provider: "google", Rank: 3, ContextLength: 1000000, PromptPrice: "0.0000001", CompletionPrice: "0.0000004", WeeklyTokens: 655_000_000},
		{ModelID: "meta-llama/llama-3.3-70b-instruct", DisplayName: "Llama 3.3 70B Instruct", Provider: "meta-llama", Rank: 4, ContextLength: 131072, PromptPrice: "0.00000012", CompletionPrice: "0.0000003", WeeklyTokens: 512_000_000},
		{ModelID: "mistralai/mistral-small-3.1-24b-instruct", DisplayName: "Mistral Small 3.1 24B", Provider: "mistralai", Rank: 5, ContextLength: 128000, PromptPrice: "0.0000001", CompletionPrice: "0.0000003", WeeklyTokens: 301_000_000},
		{ModelID: "qwen/qwen-2.5-72b-instruct", DisplayName: "Qwen 2.5 72B Instruct", Provider: "qwen", Rank: 6, ContextLength: 32768, PromptPrice: "0.00000013", CompletionPrice: "0.0000004", WeeklyTokens: 254_000_000},
	}
}
