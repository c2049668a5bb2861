package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"patchshare-backend/application/ports"
	"patchshare-backend/domain/patch"
	"patchshare-backend/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{calls: map[string]int{}}
}

func (f *fakeReader) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeReader) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func testPatch(id, username string, category patch.Category, tags ...string) *patch.Patch {
	return &patch.Patch{
		ID:         id,
		Username:   username,
		Name:       "Patch " + id,
		Category:   category,
		Tags:       tags,
		SynthModel: "mono/poly",
		Parameters: map[string]float64{"cutoff": 0.5},
		Public:     true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		Version:    1,
	}
}

func (f *fakeReader) GetByID(_ context.Context, id string) (*patch.Patch, error) {
	f.record("GetByID")
	return testPatch(id, "alice", patch.CategoryBass, "acid"), nil
}

func (f *fakeReader) ListByUser(_ context.Context, username string, _ ports.ListOptions) (*patch.Page, error) {
	f.record("ListByUser:" + username)
	return &patch.Page{Count: 1, Items: []*patch.Patch{testPatch("u1", username, patch.CategoryBass)}}, nil
}

func (f *fakeReader) Latest(_ context.Context, _ int, _ string) (*patch.Page, error) {
	f.record("Latest")
	return &patch.Page{}, nil
}

func (f *fakeReader) ListByCategory(_ context.Context, category patch.Category, _ ports.ListOptions) (*patch.Page, error) {
	f.record("ListByCategory:" + string(category))
	return &patch.Page{}, nil
}

func (f *fakeReader) ListByTag(_ context.Context, tag string, _ ports.ListOptions) (*patch.Page, error) {
	f.record("ListByTag:" + tag)
	return &patch.Page{}, nil
}

func (f *fakeReader) Search(_ context.Context, term string, _ ports.ListOptions) (*patch.Page, error) {
	f.record("Search")
	return &patch.Page{}, nil
}

func (f *fakeReader) TopRated(_ context.Context, _ float64, _ ports.ListOptions) (*patch.Page, error) {
	f.record("TopRated")
	return &patch.Page{}, nil
}

func (f *fakeReader) Stats(_ context.Context) (*patch.Stats, error) {
	f.record("Stats")
	return &patch.Stats{ByCategory: map[patch.Category]int{}}, nil
}

func (f *fakeReader) CountByUser(_ context.Context, username string) (int, error) {
	f.record("CountByUser:" + username)
	return 3, nil
}

func testTTLs() TTLConfig {
	return TTLConfig{
		ByID:     30 * time.Minute,
		Listing:  30 * time.Minute,
		Latest:   10 * time.Minute,
		Search:   15 * time.Minute,
		TopRated: time.Hour,
		Stats:    10 * time.Minute,
	}
}

func newTestCache(t *testing.T) (*PatchCache, *fakeReader) {
	t.Helper()
	store := cache.NewStore(cache.StoreConfig{SweepInterval: time.Hour}, zap.NewNop())
	t.Cleanup(store.Stop)
	reader := newFakeReader()
	return NewPatchCache(store, reader, testTTLs(), zap.NewNop(), nil), reader
}

func TestGetByIDReadsThroughOnce(t *testing.T) {
	pc, reader := newTestCache(t)
	ctx := context.Background()

	p1, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	p2, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, reader.count("GetByID"), "second read must be served from cache")
}

func TestUpdateCascadeDropsOldAndNewShapes(t *testing.T) {
	pc, reader := newTestCache(t)
	ctx := context.Background()

	// Populate every shape the update should touch, plus two it must not.
	_, err := pc.GetByID(ctx, "p1")
	require.NoError(t, err)
	_, err = pc.ListByUser(ctx, "alice", ports.ListOptions{Limit: 10})
	require.NoError(t, err)
	_, err = pc.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 10})
	require.NoError(t, err)
	_, err = pc.ListByCategory(ctx, patch.CategoryLead, ports.ListOptions{Limit: 10})
	require.NoError(t, err)
	_, err = pc.ListByTag(ctx, "acid", ports.ListOptions{Limit: 10})
	require.NoError(t, err)
	_, err = pc.ListByTag(ctx, "squelch", ports.ListOptions{Limit: 10})
	require.NoError(t, err)
	_, err = pc.Stats(ctx)
	require.NoError(t, err)
	_, err = pc.Search(ctx, "wobble", ports.ListOptions{Limit: 10})
	require.NoError(t, err)

	// Untouched by the cascade below.
	_, err = pc.ListByCategory(ctx, patch.CategoryPad, ports.ListOptions{Limit: 10})
	require.NoError(t, err)
	_, err = pc.ListByUser(ctx, "bob", ports.ListOptions{Limit: 10})
	require.NoError(t, err)

	old := testPatch("p1", "alice", patch.CategoryBass, "acid")
	updated := testPatch("p1", "alice", patch.CategoryLead, "squelch")
	updated.Version = 2

	dropped := pc.OnPatchUpdated(ctx, old, updated)
	assert.Greater(t, dropped, 0)

	// Every affected shape must re-read.
	_, _ = pc.GetByID(ctx, "p1")
	_, _ = pc.ListByUser(ctx, "alice", ports.ListOptions{Limit: 10})
	_, _ = pc.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 10})
	_, _ = pc.ListByCategory(ctx, patch.CategoryLead, ports.ListOptions{Limit: 10})
	_, _ = pc.ListByTag(ctx, "acid", ports.ListOptions{Limit: 10})
	_, _ = pc.ListByTag(ctx, "squelch", ports.ListOptions{Limit: 10})
	_, _ = pc.Stats(ctx)
	_, _ = pc.Search(ctx, "wobble", ports.ListOptions{Limit: 10})

	assert.Equal(t, 2, reader.count("GetByID"))
	assert.Equal(t, 2, reader.count("ListByUser:alice"))
	assert.Equal(t, 2, reader.count("ListByCategory:bass"))
	assert.Equal(t, 2, reader.count("ListByCategory:lead"))
	assert.Equal(t, 2, reader.count("ListByTag:acid"))
	assert.Equal(t, 2, reader.count("ListByTag:squelch"))
	assert.Equal(t, 2, reader.count("Stats"))
	assert.Equal(t, 2, reader.count("Search"))

	// Unrelated shapes must still be cached.
	_, _ = pc.ListByCategory(ctx, patch.CategoryPad, ports.ListOptions{Limit: 10})
	_, _ = pc.ListByUser(ctx, "bob", ports.ListOptions{Limit: 10})
	assert.Equal(t, 1, reader.count("ListByCategory:pad"))
	assert.Equal(t, 1, reader.count("ListByUser:bob"))
}

func TestRatedCascadeIsNarrow(t *testing.T) {
	pc, reader := newTestCache(t)
	ctx := context.Background()

	_, _ = pc.GetByID(ctx, "p1")
	_, _ = pc.TopRated(ctx, 4.0, ports.ListOptions{Limit: 10})
	_, _ = pc.Stats(ctx)
	_, _ = pc.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 10})

	rated := testPatch("p1", "alice", patch.CategoryBass, "acid")
	pc.OnPatchRated(ctx, rated)

	_, _ = pc.GetByID(ctx, "p1")
	_, _ = pc.TopRated(ctx, 4.0, ports.ListOptions{Limit: 10})
	_, _ = pc.Stats(ctx)
	_, _ = pc.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 10})

	assert.Equal(t, 2, reader.count("GetByID"))
	assert.Equal(t, 2, reader.count("TopRated"))
	assert.Equal(t, 2, reader.count("Stats"))
	assert.Equal(t, 1, reader.count("ListByCategory:bass"), "rating must not touch category listings")
}

func TestCreatedCascade(t *testing.T) {
	pc, reader := newTestCache(t)
	ctx := context.Background()

	_, _ = pc.Latest(ctx, 20, "")
	_, _ = pc.ListByUser(ctx, "alice", ports.ListOptions{Limit: 10})
	_, _ = pc.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 10})
	_, _ = pc.Stats(ctx)

	created := testPatch("p2", "alice", patch.CategoryBass, "acid")
	pc.OnPatchCreated(ctx, created)

	_, _ = pc.Latest(ctx, 20, "")
	_, _ = pc.ListByUser(ctx, "alice", ports.ListOptions{Limit: 10})
	_, _ = pc.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 10})
	_, _ = pc.Stats(ctx)

	assert.Equal(t, 2, reader.count("Latest"))
	assert.Equal(t, 2, reader.count("ListByUser:alice"))
	assert.Equal(t, 2, reader.count("ListByCategory:bass"))
	assert.Equal(t, 2, reader.count("Stats"))
}

func TestDistinctListOptionsCacheSeparately(t *testing.T) {
	pc, reader := newTestCache(t)
	ctx := context.Background()

	_, _ = pc.ListByUser(ctx, "alice", ports.ListOptions{Limit: 10})
	_, _ = pc.ListByUser(ctx, "alice", ports.ListOptions{Limit: 20})
	_, _ = pc.ListByUser(ctx, "alice", ports.ListOptions{Limit: 10})

	assert.Equal(t, 2, reader.count("ListByUser:alice"), "each option set is its own entry")
}

func TestWarmupPopulatesHotShapes(t *testing.T) {
	pc, reader := newTestCache(t)
	ctx := context.Background()

	pc.Warmup(ctx)

	_, _ = pc.Latest(ctx, 20, "")
	_, _ = pc.Stats(ctx)
	_, _ = pc.TopRated(ctx, 4.0, ports.ListOptions{Limit: 20})
	_, _ = pc.ListByCategory(ctx, patch.CategoryBass, ports.ListOptions{Limit: 20})

	assert.Equal(t, 1, reader.count("Latest"))
	assert.Equal(t, 1, reader.count("Stats"))
	assert.Equal(t, 1, reader.count("TopRated"))
	assert.Equal(t, 1, reader.count("ListByCategory:bass"))
}

func TestClearAllForcesReload(t *testing.T) {
	pc, reader := newTestCache(t)
	ctx := context.Background()

	_, _ = pc.GetByID(ctx, "p1")
	_, _ = pc.Stats(ctx)

	dropped := pc.ClearAll()
	assert.Equal(t, 2, dropped)

	_, _ = pc.GetByID(ctx, "p1")
	_, _ = pc.Stats(ctx)
	assert.Equal(t, 2, reader.count("GetByID"))
	assert.Equal(t, 2, reader.count("Stats"))
}
