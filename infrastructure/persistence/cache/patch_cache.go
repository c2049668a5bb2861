package cache

import (
	"context"
	"regexp"
	"strings"
	"time"

	"patchshare-backend/application/ports"
	"patchshare-backend/domain/patch"
	"patchshare-backend/pkg/cache"
	"patchshare-backend/pkg/observability"

	"go.uber.org/zap"
)

// TTLConfig carries the per-shape expirations. Volatile shapes (latest,
// stats) run short; stable shapes (top rated) run long.
type TTLConfig struct {
	ByID     time.Duration
	Listing  time.Duration
	Latest   time.Duration
	Search   time.Duration
	TopRated time.Duration
	Stats    time.Duration
}

// PatchCache implements ports.PatchReader cache-aside over another reader
// and owns the write-triggered invalidation cascade. Every cached entry is
// registered under the tags that describe what makes it stale, so a write
// only has to name its tags, never enumerate keys.
type PatchCache struct {
	store   *cache.Store
	reader  ports.PatchReader
	ttls    TTLConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewPatchCache creates the caching layer over reader
func NewPatchCache(store *cache.Store, reader ports.PatchReader, ttls TTLConfig, logger *zap.Logger, metrics *observability.Metrics) *PatchCache {
	return &PatchCache{
		store:   store,
		reader:  reader,
		ttls:    ttls,
		logger:  logger,
		metrics: metrics,
	}
}

// GetByID returns the patch from cache, falling back to the reader
func (c *PatchCache) GetByID(ctx context.Context, id string) (*patch.Patch, error) {
	key := keyByID(id)
	if v, ok := c.store.Get(key); ok {
		if p, ok := v.(*patch.Patch); ok {
			return p, nil
		}
	}

	p, err := c.reader.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store.SetWithTags(key, p,
		[]string{tagPatch(p.ID), tagUser(p.Username)},
		cache.EntryOptions{TTL: c.ttls.ByID})
	return p, nil
}

// ListByUser returns one cached page of the user's patches
func (c *PatchCache) ListByUser(ctx context.Context, username string, opts ports.ListOptions) (*patch.Page, error) {
	return c.getPage(ctx, keyUser(username, opts),
		[]string{tagUser(username)}, c.ttls.Listing,
		func(ctx context.Context) (*patch.Page, error) {
			return c.reader.ListByUser(ctx, username, opts)
		})
}

// Latest returns the cached recency listing
func (c *PatchCache) Latest(ctx context.Context, limit int, cursor string) (*patch.Page, error) {
	return c.getPage(ctx, keyLatest(limit, cursor),
		[]string{tagLatest}, c.ttls.Latest,
		func(ctx context.Context) (*patch.Page, error) {
			return c.reader.Latest(ctx, limit, cursor)
		})
}

// ListByCategory returns one cached page of a category
func (c *PatchCache) ListByCategory(ctx context.Context, category patch.Category, opts ports.ListOptions) (*patch.Page, error) {
	return c.getPage(ctx, keyCategory(category, opts),
		[]string{tagCategory(category)}, c.ttls.Listing,
		func(ctx context.Context) (*patch.Page, error) {
			return c.reader.ListByCategory(ctx, category, opts)
		})
}

// ListByTag returns one cached page of patches carrying the tag
func (c *PatchCache) ListByTag(ctx context.Context, tag string, opts ports.ListOptions) (*patch.Page, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return c.getPage(ctx, keyTag(tag, opts),
		[]string{tagTag(tag)}, c.ttls.Listing,
		func(ctx context.Context) (*patch.Page, error) {
			return c.reader.ListByTag(ctx, tag, opts)
		})
}

// Search returns one cached page of search results
func (c *PatchCache) Search(ctx context.Context, term string, opts ports.ListOptions) (*patch.Page, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	return c.getPage(ctx, keySearch(term, opts),
		[]string{tagSearch}, c.ttls.Search,
		func(ctx context.Context) (*patch.Page, error) {
			return c.reader.Search(ctx, term, opts)
		})
}

// TopRated returns one cached page of the rating-ordered listing
func (c *PatchCache) TopRated(ctx context.Context, minRating float64, opts ports.ListOptions) (*patch.Page, error) {
	return c.getPage(ctx, keyTopRated(minRating, opts),
		[]string{tagTopRated}, c.ttls.TopRated,
		func(ctx context.Context) (*patch.Page, error) {
			return c.reader.TopRated(ctx, minRating, opts)
		})
}

// Stats returns the cached library-wide aggregates
func (c *PatchCache) Stats(ctx context.Context) (*patch.Stats, error) {
	key := keyStats()
	if v, ok := c.store.Get(key); ok {
		if stats, ok := v.(*patch.Stats); ok {
			return stats, nil
		}
	}

	stats, err := c.reader.Stats(ctx)
	if err != nil {
		return nil, err
	}

	c.store.SetWithTags(key, stats, []string{tagStats}, cache.EntryOptions{TTL: c.ttls.Stats})
	return stats, nil
}

// CountByUser returns the cached per-user patch count
func (c *PatchCache) CountByUser(ctx context.Context, username string) (int, error) {
	key := keyUserCount(username)
	if v, ok := c.store.Get(key); ok {
		if count, ok := v.(int); ok {
			return count, nil
		}
	}

	count, err := c.reader.CountByUser(ctx, username)
	if err != nil {
		return 0, err
	}

	c.store.SetWithTags(key, count, []string{tagUser(username)}, cache.EntryOptions{TTL: c.ttls.Listing})
	return count, nil
}

func (c *PatchCache) getPage(ctx context.Context, key string, tags []string, ttl time.Duration, load func(context.Context) (*patch.Page, error)) (*patch.Page, error) {
	if v, ok := c.store.Get(key); ok {
		if page, ok := v.(*patch.Page); ok {
			return page, nil
		}
	}

	page, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.store.SetWithTags(key, page, tags, cache.EntryOptions{TTL: ttl})
	return page, nil
}

// OnPatchCreated drops every listing a new patch can appear in. The
// patch's own entry cannot exist yet, so no patch tag is touched.
func (c *PatchCache) OnPatchCreated(ctx context.Context, p *patch.Patch) int {
	tags := []string{
		tagUser(p.Username),
		tagCategory(p.Category),
		tagLatest, tagSearch, tagStats,
	}
	for _, t := range p.Tags {
		tags = append(tags, tagTag(t))
	}
	return c.invalidate(ctx, "patch.created", tags)
}

// OnPatchUpdated drops the patch entry plus every listing touched by
// either the old or the new state. Both categories and the union of old
// and new tags are invalidated so stale membership cannot linger.
func (c *PatchCache) OnPatchUpdated(ctx context.Context, old, updated *patch.Patch) int {
	tags := []string{
		tagPatch(updated.ID),
		tagUser(updated.Username),
		tagCategory(old.Category),
		tagCategory(updated.Category),
		tagLatest, tagSearch, tagStats, tagTopRated,
	}
	for t := range old.TagSet() {
		tags = append(tags, tagTag(t))
	}
	for t := range updated.TagSet() {
		tags = append(tags, tagTag(t))
	}
	return c.invalidate(ctx, "patch.updated", tags)
}

// OnPatchDeleted drops the patch entry and every listing it was part of
func (c *PatchCache) OnPatchDeleted(ctx context.Context, p *patch.Patch) int {
	tags := []string{
		tagPatch(p.ID),
		tagUser(p.Username),
		tagCategory(p.Category),
		tagLatest, tagSearch, tagStats, tagTopRated,
	}
	for _, t := range p.Tags {
		tags = append(tags, tagTag(t))
	}
	return c.invalidate(ctx, "patch.deleted", tags)
}

// OnPatchRated drops only the shapes a rating changes
func (c *PatchCache) OnPatchRated(ctx context.Context, p *patch.Patch) int {
	return c.invalidate(ctx, "patch.rated", []string{
		tagPatch(p.ID), tagUser(p.Username), tagTopRated, tagStats,
	})
}

// OnPatchDownloaded drops only the shapes a download counter changes
func (c *PatchCache) OnPatchDownloaded(ctx context.Context, p *patch.Patch) int {
	return c.invalidate(ctx, "patch.downloaded", []string{
		tagPatch(p.ID), tagUser(p.Username), tagStats,
	})
}

func (c *PatchCache) invalidate(ctx context.Context, trigger string, tags []string) int {
	seen := make(map[string]struct{}, len(tags))
	dropped := 0
	for _, tag := range tags {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		dropped += c.store.InvalidateByTag(tag)
	}

	c.logger.Debug("cache invalidation cascade",
		zap.String("trigger", trigger),
		zap.Int("tags", len(seen)),
		zap.Int("dropped", dropped),
	)
	if c.metrics != nil {
		c.metrics.RecordCacheInvalidation(ctx, trigger, dropped)
	}
	return dropped
}

// Warmup pre-populates the hottest shapes. Failures are logged and
// swallowed; a cold cache is a performance problem, not a startup error.
func (c *PatchCache) Warmup(ctx context.Context) {
	start := time.Now()

	if _, err := c.Latest(ctx, 20, ""); err != nil {
		c.logger.Warn("cache warmup: latest failed", zap.Error(err))
	}
	if _, err := c.Stats(ctx); err != nil {
		c.logger.Warn("cache warmup: stats failed", zap.Error(err))
	}
	// Same default min_rating the handler uses.
	if _, err := c.TopRated(ctx, 4.0, ports.ListOptions{Limit: 20}); err != nil {
		c.logger.Warn("cache warmup: top rated failed", zap.Error(err))
	}
	for _, category := range patch.Categories {
		if _, err := c.ListByCategory(ctx, category, ports.ListOptions{Limit: 20}); err != nil {
			c.logger.Warn("cache warmup: category failed",
				zap.String("category", string(category)),
				zap.Error(err))
		}
	}

	c.logger.Info("cache warmup finished", zap.Duration("took", time.Since(start)))
}

// Metrics returns a point-in-time snapshot of the underlying store
func (c *PatchCache) Metrics() cache.Stats {
	return c.store.Stats()
}

// PublishMetrics pushes the current snapshot to CloudWatch
func (c *PatchCache) PublishMetrics(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	snap := c.store.Stats()
	var totalAccesses int64
	for _, item := range snap.Items {
		totalAccesses += item.AccessCount
	}
	c.metrics.RecordCacheStats(ctx, snap.Size, totalAccesses, snap.HitRate)
}

// ClearAll empties the cache and returns the number of entries dropped
func (c *PatchCache) ClearAll() int {
	return c.store.Clear()
}

// ClearPattern drops every entry whose key matches re
func (c *PatchCache) ClearPattern(re *regexp.Regexp) int {
	return c.store.ClearByPattern(re)
}

// InvalidateTag drops every entry registered under tag
func (c *PatchCache) InvalidateTag(tag string) int {
	return c.store.InvalidateByTag(tag)
}
