// Package integration exercises the full write-invalidate-reload loop:
// service on top of the cache-aside layer on top of an in-memory
// repository standing in for DynamoDB.
package integration

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"patchshare-backend/application/ports"
	"patchshare-backend/application/services"
	"patchshare-backend/domain/events"
	"patchshare-backend/domain/patch"
	cachestore "patchshare-backend/infrastructure/persistence/cache"
	"patchshare-backend/pkg/cache"
	pkgerrors "patchshare-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryRepo is a map-backed stand-in for the DynamoDB repository. It
// counts reads per query shape so tests can tell cache hits from misses.
type memoryRepo struct {
	mu      sync.Mutex
	patches map[string]*patch.Patch
	reads   map[string]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		patches: make(map[string]*patch.Patch),
		reads:   make(map[string]int),
	}
}

func (r *memoryRepo) count(shape string) {
	r.mu.Lock()
	r.reads[shape]++
	r.mu.Unlock()
}

func (r *memoryRepo) readCount(shape string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[shape]
}

func (r *memoryRepo) Create(ctx context.Context, p *patch.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.patches[p.ID]; exists {
		return pkgerrors.NewConflictError("patch already exists")
	}
	r.patches[p.ID] = p
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, p *patch.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.patches[p.ID]
	if !exists {
		return pkgerrors.NewNotFoundError("patch")
	}
	if current.Version != p.Version-1 {
		return pkgerrors.NewConflictError("patch was modified concurrently")
	}
	r.patches[p.ID] = p
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, username, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.patches[id]; !exists {
		return pkgerrors.NewNotFoundError("patch")
	}
	delete(r.patches, id)
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*patch.Patch, error) {
	r.count("GetByID")
	r.mu.Lock()
	defer r.mu.Unlock()
	p, exists := r.patches[id]
	if !exists {
		return nil, pkgerrors.NewNotFoundError("patch")
	}
	return p, nil
}

func (r *memoryRepo) all() []*patch.Patch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*patch.Patch, 0, len(r.patches))
	for _, p := range r.patches {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func page(items []*patch.Patch) *patch.Page {
	return &patch.Page{Items: items, Count: len(items)}
}

func (r *memoryRepo) ListByUser(ctx context.Context, username string, opts ports.ListOptions) (*patch.Page, error) {
	r.count("ListByUser")
	var items []*patch.Patch
	for _, p := range r.all() {
		if p.Username == username {
			items = append(items, p)
		}
	}
	return page(items), nil
}

func (r *memoryRepo) Latest(ctx context.Context, limit int, cursor string) (*patch.Page, error) {
	r.count("Latest")
	var items []*patch.Patch
	for _, p := range r.all() {
		if p.Public {
			items = append(items, p)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return page(items), nil
}

func (r *memoryRepo) ListByCategory(ctx context.Context, category patch.Category, opts ports.ListOptions) (*patch.Page, error) {
	r.count("ListByCategory:" + string(category))
	var items []*patch.Patch
	for _, p := range r.all() {
		if p.Public && p.Category == category {
			items = append(items, p)
		}
	}
	return page(items), nil
}

func (r *memoryRepo) ListByTag(ctx context.Context, tag string, opts ports.ListOptions) (*patch.Page, error) {
	r.count("ListByTag:" + tag)
	var items []*patch.Patch
	for _, p := range r.all() {
		if !p.Public {
			continue
		}
		if _, ok := p.TagSet()[tag]; ok {
			items = append(items, p)
		}
	}
	return page(items), nil
}

func (r *memoryRepo) Search(ctx context.Context, term string, opts ports.ListOptions) (*patch.Page, error) {
	r.count("Search:" + term)
	term = strings.ToLower(term)
	var items []*patch.Patch
	for _, p := range r.all() {
		if !p.Public {
			continue
		}
		haystack := strings.ToLower(p.Name + " " + p.Description + " " + p.SynthModel + " " + strings.Join(p.Tags, " "))
		if strings.Contains(haystack, term) {
			items = append(items, p)
		}
	}
	return page(items), nil
}

func (r *memoryRepo) TopRated(ctx context.Context, minRating float64, opts ports.ListOptions) (*patch.Page, error) {
	r.count("TopRated")
	var items []*patch.Patch
	for _, p := range r.all() {
		if p.Public && p.RatingCount >= 1 && p.AverageRating() >= minRating {
			items = append(items, p)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].AverageRating() > items[j].AverageRating() })
	return page(items), nil
}

func (r *memoryRepo) Stats(ctx context.Context) (*patch.Stats, error) {
	r.count("Stats")
	stats := &patch.Stats{ByCategory: make(map[patch.Category]int)}
	var ratingSum, ratingCount int
	for _, p := range r.all() {
		if !p.Public {
			continue
		}
		stats.TotalPatches++
		stats.TotalDownloads += p.Downloads
		stats.ByCategory[p.Category]++
		ratingSum += p.RatingSum
		ratingCount += p.RatingCount
	}
	if ratingCount > 0 {
		stats.AverageRating = float64(ratingSum) / float64(ratingCount)
	}
	return stats, nil
}

func (r *memoryRepo) CountByUser(ctx context.Context, username string) (int, error) {
	r.count("CountByUser:" + username)
	n := 0
	for _, p := range r.all() {
		if p.Username == username {
			n++
		}
	}
	return n, nil
}

type noopBus struct{}

func (noopBus) Publish(ctx context.Context, event events.DomainEvent) error { return nil }
func (noopBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	return nil
}

type fixture struct {
	repo    *memoryRepo
	cache   *cachestore.PatchCache
	service *services.PatchService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMemoryRepo()
	store := cache.NewStore(cache.StoreConfig{
		DefaultTTL:    time.Hour,
		MaxSize:       1000,
		SweepInterval: time.Hour,
	}, zap.NewNop())
	t.Cleanup(store.Stop)

	ttls := cachestore.TTLConfig{
		ByID:     time.Hour,
		Listing:  time.Hour,
		Latest:   time.Hour,
		Search:   time.Hour,
		TopRated: time.Hour,
		Stats:    time.Hour,
	}
	patchCache := cachestore.NewPatchCache(store, repo, ttls, zap.NewNop(), nil)
	service := services.NewPatchService(repo, patchCache, noopBus{}, patchCache, zap.NewNop())

	return &fixture{repo: repo, cache: patchCache, service: service}
}

func createPatch(t *testing.T, f *fixture, username, name string, category string, tags []string) *patch.Patch {
	t.Helper()
	p, err := f.service.Create(context.Background(), username, services.CreatePatchInput{
		Name:       name,
		Category:   category,
		Tags:       tags,
		SynthModel: "tb-303",
		Parameters: map[string]float64{"cutoff": 0.42, "resonance": 0.9},
		Public:     true,
	})
	require.NoError(t, err)
	return p
}

func TestReadThroughCachesEveryShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := createPatch(t, f, "alice", "Rubber Bass", "bass", []string{"acid"})

	for i := 0; i < 3; i++ {
		got, err := f.service.GetPatch(ctx, "", p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	}
	assert.Equal(t, 1, f.repo.readCount("GetByID"), "repeat reads must be served from cache")

	for i := 0; i < 2; i++ {
		_, err := f.service.Latest(ctx, 20, "")
		require.NoError(t, err)
		_, err = f.service.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 20})
		require.NoError(t, err)
		_, err = f.service.Stats(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.repo.readCount("Latest"))
	assert.Equal(t, 1, f.repo.readCount("ListByCategory:bass"))
	assert.Equal(t, 1, f.repo.readCount("Stats"))
}

func TestUpdateInvalidatesAndReloadsFreshState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := createPatch(t, f, "alice", "Rubber Bass", "bass", []string{"acid"})

	// Populate the cache.
	_, err := f.service.GetPatch(ctx, "", p.ID)
	require.NoError(t, err)
	_, err = f.service.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 20})
	require.NoError(t, err)
	_, err = f.service.ListByCategory(ctx, patch.CategoryLead, ports.ListOptions{Limit: 20})
	require.NoError(t, err)

	newName := "Screaming Lead"
	newCategory := "lead"
	updated, err := f.service.Update(ctx, "alice", p.ID, services.UpdatePatchInput{
		Name:     &newName,
		Category: &newCategory,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// Both the old and new category listings were dropped.
	bassPage, err := f.service.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, bassPage.Items)
	assert.Equal(t, 2, f.repo.readCount("ListByCategory:bass"))

	leadPage, err := f.service.ListByCategory(ctx, patch.CategoryLead, ports.ListOptions{Limit: 20})
	require.NoError(t, err)
	require.Len(t, leadPage.Items, 1)
	assert.Equal(t, "Screaming Lead", leadPage.Items[0].Name)
	assert.Equal(t, 2, f.repo.readCount("ListByCategory:lead"))

	// Three repository reads: the initial cache fill, the ownership check
	// inside Update (writes never read the cache), and the reload after
	// invalidation.
	got, err := f.service.GetPatch(ctx, "", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Screaming Lead", got.Name)
	assert.Equal(t, 3, f.repo.readCount("GetByID"))
}

func TestRatingFlowRefreshesTopRated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := createPatch(t, f, "alice", "Rubber Bass", "bass", []string{"acid"})

	empty, err := f.service.TopRated(ctx, 4.0, ports.ListOptions{Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)

	_, err = f.service.Rate(ctx, p.ID, 5)
	require.NoError(t, err)

	rated, err := f.service.TopRated(ctx, 4.0, ports.ListOptions{Limit: 20})
	require.NoError(t, err)
	require.Len(t, rated.Items, 1)
	assert.InDelta(t, 5.0, rated.Items[0].AverageRating(), 0.001)
	assert.Equal(t, 2, f.repo.readCount("TopRated"))
}

func TestDownloadBumpsCounterAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := createPatch(t, f, "alice", "Rubber Bass", "bass", nil)

	before, err := f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, before.TotalDownloads)

	downloaded, err := f.service.RecordDownload(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, downloaded.Downloads)

	after, err := f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, after.TotalDownloads)
}

func TestDeleteRemovesPatchEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := createPatch(t, f, "alice", "Rubber Bass", "bass", []string{"acid"})

	_, err := f.service.GetPatch(ctx, "", p.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, "alice", p.ID))

	_, err = f.service.GetPatch(ctx, "", p.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	latest, err := f.service.Latest(ctx, 20, "")
	require.NoError(t, err)
	assert.Empty(t, latest.Items)
}

func TestSearchGoesStaleOnlyUntilNextWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	createPatch(t, f, "alice", "Rubber Bass", "bass", []string{"acid"})

	first, err := f.service.Search(ctx, "rubber", ports.ListOptions{Limit: 20})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)

	// Cached: a second identical search never reaches the repository.
	_, err = f.service.Search(ctx, "rubber", ports.ListOptions{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.readCount("Search:rubber"))

	createPatch(t, f, "bob", "Rubber Duck Lead", "lead", nil)

	second, err := f.service.Search(ctx, "rubber", ports.ListOptions{Limit: 20})
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)
	assert.Equal(t, 2, f.repo.readCount("Search:rubber"))
}
