// Package refresh owns the published registry snapshot. It pulls sources,
// detects revision changes, rebuilds the merged index and search engine off
// to the side, and swaps the finished pair in under a short write lock.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/cache"
	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/registry"
	"github.com/joshrotenberg/skillet/internal/search"
	"github.com/joshrotenberg/skillet/internal/source"
)

// Refresh stages reported in apperr.RefreshError.
const (
	StagePull  = "pull"
	StageLoad  = "load"
	StageCache = "cache"
)

// Snapshot is one immutable published (index, search) pair. Readers may keep
// a Snapshot for as long as they like; it is never modified after publish.
type Snapshot struct {
	ID        ulid.ULID
	Index     *models.SkillIndex
	Search    *search.SkillSearch
	BuiltAt   time.Time
	Revisions map[string]string
	Conflicts []registry.Conflict
}

// Options configures a Controller.
type Options struct {
	// Sources in precedence order: earlier sources win merge conflicts.
	Sources []source.Source
	// Interval between automatic refreshes. Zero disables them.
	Interval time.Duration
	// CacheDir enables the disk cache when non-empty.
	CacheDir string
	// CacheTTL is the maximum age of a usable cache file. Zero never expires.
	CacheTTL time.Duration
	// Watch reloads local sources on filesystem changes.
	Watch         bool
	WatchDebounce time.Duration
	Clock         Clock
	Logger        *slog.Logger
	// OnPublish is called after every swap, outside any lock.
	OnPublish func(prev, next *Snapshot)
	// OnFailure is called when a refresh stage fails.
	OnFailure func(err *apperr.RefreshError)
}

type sourceState struct {
	revision string
	index    *models.SkillIndex
}

// Controller manages the published snapshot. Its zero value is not usable;
// create one with New.
type Controller struct {
	opts   Options
	logger *slog.Logger
	clock  Clock

	mu   sync.RWMutex
	snap *Snapshot

	// build serializes merge, search build and swap across sources.
	build sync.Mutex
	group singleflight.Group

	stateMu sync.Mutex
	states  map[string]sourceState
}

// New returns a controller publishing an empty snapshot.
func New(opts Options) *Controller {
	c := &Controller{
		opts:   opts,
		logger: opts.Logger,
		clock:  opts.Clock,
		states: make(map[string]sourceState),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = RealClock{}
	}
	empty := models.NewSkillIndex()
	c.snap = &Snapshot{
		ID:        c.newID(),
		Index:     empty,
		Search:    search.Build(empty),
		BuiltAt:   c.clock.Now(),
		Revisions: map[string]string{},
	}
	return c
}

// Current returns the published snapshot.
func (c *Controller) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Sources returns the configured sources in precedence order.
func (c *Controller) Sources() []source.Source {
	return c.opts.Sources
}

// Source finds a configured source by id.
func (c *Controller) Source(id string) (source.Source, error) {
	for _, s := range c.opts.Sources {
		if s.ID() == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("refresh: source %q: %w", id, apperr.ErrNotFound)
}

// Start warms the snapshot from the disk cache, then runs one refresh of
// every source. Refresh failures are logged and reported, never fatal: the
// returned error joins them for callers that want to surface them.
func (c *Controller) Start(ctx context.Context) error {
	if c.warm() {
		c.publish("cache")
	}
	_, err := c.RefreshAll(ctx)
	return err
}

// Run drives periodic refreshes and filesystem watches until ctx is done.
// With a zero interval and watching disabled it only waits for ctx.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range c.opts.Sources {
		if src.Kind() == source.KindEmbedded {
			continue
		}
		if c.opts.Interval > 0 {
			g.Go(func() error {
				c.loop(ctx, src)
				return nil
			})
		}
		if local, ok := src.(*source.Local); ok && c.opts.Watch {
			g.Go(func() error {
				err := Watch(ctx, local.Path(), c.opts.WatchDebounce, c.logger, func() {
					c.Refresh(ctx, src.ID()) //nolint:errcheck // reported via logs and OnFailure
				})
				if err != nil {
					c.logger.Warn("refresh: watch failed",
						slog.String("source", src.ID()),
						slog.String("error", err.Error()))
				}
				return nil
			})
		}
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

func (c *Controller) loop(ctx context.Context, src source.Source) {
	t := c.clock.NewTicker(c.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			c.Refresh(ctx, src.ID()) //nolint:errcheck // reported via logs and OnFailure
		}
	}
}

// RefreshAll refreshes every source in precedence order and returns the
// resulting snapshot with any failures joined.
func (c *Controller) RefreshAll(ctx context.Context) (*Snapshot, error) {
	var errs []error
	for _, src := range c.opts.Sources {
		if _, err := c.Refresh(ctx, src.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return c.Current(), errors.Join(errs...)
}

// Refresh pulls one source and rebuilds when its revision changed. A request
// arriving while the same source is mid-refresh joins the in-flight one.
// Cancelling ctx does not abort the run; pulls are bounded by the source's
// own timeout.
// On failure the published snapshot is left untouched.
func (c *Controller) Refresh(ctx context.Context, sourceID string) (*Snapshot, error) {
	src, err := c.Source(sourceID)
	if err != nil {
		return c.Current(), err
	}
	// Joined callers share one run, so it must not die with whichever
	// caller happened to start it.
	runCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(sourceID, func() (any, error) {
		return c.refresh(runCtx, src)
	})
	snap, _ := v.(*Snapshot)
	if snap == nil {
		snap = c.Current()
	}
	return snap, err
}

func (c *Controller) refresh(ctx context.Context, src source.Source) (*Snapshot, error) {
	id := src.ID()

	rev, err := src.Sync(ctx)
	if err != nil {
		return c.Current(), c.fail(id, StagePull, err)
	}

	c.stateMu.Lock()
	prev, known := c.states[id]
	c.stateMu.Unlock()
	if known && prev.revision == rev {
		c.logger.Debug("refresh: unchanged", slog.String("source", id), slog.String("revision", rev))
		return c.Current(), nil
	}

	p, err := src.Provider()
	if err != nil {
		return c.Current(), c.fail(id, StageLoad, err)
	}
	res, err := registry.Load(ctx, p, registry.Options{
		SourceID:  id,
		Subdir:    src.Subdir(),
		FlatOwner: src.FlatOwner(),
		Logger:    c.logger,
	})
	if err != nil {
		return c.Current(), c.fail(id, StageLoad, err)
	}

	c.stateMu.Lock()
	c.states[id] = sourceState{revision: rev, index: res.Index}
	c.stateMu.Unlock()

	snap := c.publish(id)
	c.logger.Info("refresh: reloaded",
		slog.String("source", id),
		slog.String("revision", rev),
		slog.Int("skills", len(res.Index.Skills)),
		slog.Int("errors", len(res.Errors)))

	if c.opts.CacheDir != "" {
		if err := cache.Write(c.opts.CacheDir, src, rev, res.Index, c.clock.Now()); err != nil {
			c.fail(id, StageCache, err) //nolint:errcheck // a cache write failure does not fail the refresh
		}
	}
	return snap, nil
}

// warm seeds per-source state from fresh cache files. It reports whether
// anything was loaded.
func (c *Controller) warm() bool {
	if c.opts.CacheDir == "" {
		return false
	}
	loaded := false
	now := c.clock.Now()
	for _, src := range c.opts.Sources {
		res := cache.Load(c.opts.CacheDir, src, c.opts.CacheTTL, now)
		switch {
		case res.Err != nil:
			c.logger.Warn("refresh: cache unusable",
				slog.String("source", src.ID()),
				slog.String("error", res.Err.Error()))
			continue
		case res.State != cache.Fresh:
			c.logger.Debug("refresh: cache miss",
				slog.String("source", src.ID()),
				slog.String("state", res.State.String()))
			continue
		}
		c.stateMu.Lock()
		c.states[src.ID()] = sourceState{revision: res.Revision, index: res.Index}
		c.stateMu.Unlock()
		loaded = true
		c.logger.Info("refresh: warm start from cache",
			slog.String("source", src.ID()),
			slog.Int("skills", len(res.Index.Skills)))
	}
	return loaded
}

// publish merges the latest per-source indices, builds search and swaps the
// snapshot. Only the pointer swap holds the write lock.
func (c *Controller) publish(reason string) *Snapshot {
	c.build.Lock()
	defer c.build.Unlock()

	c.stateMu.Lock()
	indices := make([]*models.SkillIndex, 0, len(c.opts.Sources))
	revisions := make(map[string]string, len(c.states))
	for _, src := range c.opts.Sources {
		if st, ok := c.states[src.ID()]; ok {
			indices = append(indices, st.index)
			revisions[src.ID()] = st.revision
		}
	}
	c.stateMu.Unlock()

	merged, conflicts := registry.Merge(indices...)
	for _, cf := range conflicts {
		c.logger.Info("refresh: duplicate skill, keeping first source",
			slog.String("skill", cf.Key.String()),
			slog.String("winner", cf.Winner),
			slog.String("loser", cf.Loser))
	}
	next := &Snapshot{
		ID:        c.newID(),
		Index:     merged,
		Search:    search.Build(merged),
		BuiltAt:   c.clock.Now(),
		Revisions: revisions,
		Conflicts: conflicts,
	}

	c.mu.Lock()
	prev := c.snap
	c.snap = next
	c.mu.Unlock()

	c.logger.Info("refresh: published",
		slog.String("snapshot", next.ID.String()),
		slog.String("reason", reason),
		slog.Int("skills", len(merged.Skills)))
	if c.opts.OnPublish != nil {
		c.opts.OnPublish(prev, next)
	}
	return next
}

func (c *Controller) fail(sourceID, stage string, err error) error {
	rerr := &apperr.RefreshError{Source: sourceID, Stage: stage, Err: err}
	c.logger.Warn("refresh: failed",
		slog.String("source", sourceID),
		slog.String("stage", stage),
		slog.String("error", err.Error()))
	if c.opts.OnFailure != nil {
		c.opts.OnFailure(rerr)
	}
	return rerr
}

func (c *Controller) newID() ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(c.clock.Now()), ulid.DefaultEntropy())
}

// Revisions returns a copy of every known source revision.
func (c *Controller) Revisions() map[string]string {
	return maps.Clone(c.Current().Revisions)
}
