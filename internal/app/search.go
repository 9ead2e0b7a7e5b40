package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"citymeet/mobile/internal/bookmarks"
	"citymeet/mobile/internal/models"
	"citymeet/mobile/internal/query"
	"citymeet/mobile/internal/repository"
)

// SearchController drives the event list. Filter edits are debounced so a
// burst of keystrokes issues one query, and every request carries a
// monotonic sequence number: a response older than the latest issued
// request is dropped instead of clobbering newer results.
type SearchController struct {
	repo     *repository.Repository
	store    *bookmarks.Store
	logger   *slog.Logger
	debounce time.Duration

	ctx context.Context

	mu        sync.Mutex
	timer     *time.Timer
	seq       uint64
	delivered uint64
	spec      query.FilterSpec
	events    []models.Event
	closed    bool

	onResults func([]models.Event)
	onError   func(error)
}

func NewSearchController(ctx context.Context, repo *repository.Repository, store *bookmarks.Store, debounce time.Duration, logger *slog.Logger) *SearchController {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &SearchController{
		repo:     repo,
		store:    store,
		logger:   logger,
		debounce: debounce,
		ctx:      ctx,
		spec:     query.DefaultFilter(),
	}
}

// OnResults registers the callback receiving each settled result set.
func (c *SearchController) OnResults(fn func([]models.Event)) {
	c.mu.Lock()
	c.onResults = fn
	c.mu.Unlock()
}

// OnError registers the callback for fetch failures. There is no automatic
// retry; re-setting the filter re-issues the query.
func (c *SearchController) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// SetFilter replaces the filter state and (re)arms the debounce timer.
func (c *SearchController) SetFilter(spec query.FilterSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.spec = spec
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.flush)
}

// Refresh bypasses the debounce and issues the current filter immediately
// (pull-to-refresh, manual retry).
func (c *SearchController) Refresh() {
	c.flush()
}

func (c *SearchController) flush() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	spec := c.spec
	c.mu.Unlock()

	go c.issue(seq, spec)
}

func (c *SearchController) issue(seq uint64, spec query.FilterSpec) {
	events, err := c.repo.FetchEvents(c.ctx, spec)

	c.mu.Lock()
	if c.closed || seq < c.seq || seq <= c.delivered {
		// A newer request was issued (or already answered); this response
		// is stale.
		c.mu.Unlock()
		return
	}
	c.delivered = seq
	if err != nil {
		onError := c.onError
		c.mu.Unlock()
		c.logger.Warn("action", "action", "fetch_events", "status", "failed", "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}
	annotated := c.store.SetEvents(events)
	c.events = annotated
	onResults := c.onResults
	c.mu.Unlock()

	if onResults != nil {
		onResults(annotated)
	}
}

// Events returns the latest delivered result set with current bookmark
// flags.
func (c *SearchController) Events() []models.Event {
	return c.store.Events()
}

// Close cancels any pending debounce timer; an in-flight fetch is allowed
// to finish and its result is discarded.
func (c *SearchController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
