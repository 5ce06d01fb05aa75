package treecache_test

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stochgrid/pkg/persist"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treecache"
)

const (
	// smallMaxEntries limits the cache to 3 entries for eviction tests.
	smallMaxEntries = 3

	// testConcurrentGoroutines is the number of goroutines racing on one key.
	testConcurrentGoroutines = 32
)

var errBuild = errors.New("build failed")

type record struct {
	Leaves int
}

func TestCache_CountEviction(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxEntries[int](smallMaxEntries))

	for i := range 5 {
		require.NoError(t, c.Put(strconv.Itoa(i), i))
	}

	assert.Equal(t, smallMaxEntries, c.Len())

	_, ok := c.Get("0")
	assert.False(t, ok)

	v, ok := c.Get("4")
	require.True(t, ok)
	assert.Equal(t, 4, v)

	assert.Equal(t, int64(2), c.Stats().Evictions)
}

func TestCache_RecencyOrder(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxEntries[int](2))

	require.NoError(t, c.Put("a", 1))
	require.NoError(t, c.Put("b", 2))

	_, ok := c.Get("a")
	require.True(t, ok)

	require.NoError(t, c.Put("c", 3))

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")

	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestCache_UpdateDoesNotEvict(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxEntries[int](2))

	require.NoError(t, c.Put("a", 1))
	require.NoError(t, c.Put("b", 2))
	require.NoError(t, c.Put("a", 10))

	assert.Equal(t, 2, c.Len())

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestCache_SizeEviction(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxBytes(100, func(v int) int64 { return int64(v) }))

	require.NoError(t, c.Put("a", 40))
	require.NoError(t, c.Put("b", 40))
	require.NoError(t, c.Put("c", 40))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(80), c.Stats().CurrentSize)

	require.NoError(t, c.Put("huge", 500))

	_, ok := c.Get("huge")
	assert.False(t, ok, "values above the budget are not held")
}

func TestCache_RequiresLimit(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { treecache.New[int]() })
}

func TestCache_GetOrBuild(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxEntries[record](smallMaxEntries))
	ctx := context.Background()

	builds := 0
	build := func(context.Context) (record, error) {
		builds++

		return record{Leaves: 4}, nil
	}

	v, hit, err := c.GetOrBuild(ctx, "k", build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, v.Leaves)

	v, hit, err = c.GetOrBuild(ctx, "k", build)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 4, v.Leaves)
	assert.Equal(t, 1, builds)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-12)
}

func TestCache_GetOrBuildError(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxEntries[record](smallMaxEntries))

	_, _, err := c.GetOrBuild(context.Background(), "k", func(context.Context) (record, error) {
		return record{}, errBuild
	})
	require.ErrorIs(t, err, errBuild)
	assert.Zero(t, c.Len())
}

func TestCache_GetOrBuildSharesConcurrentBuilds(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxEntries[record](smallMaxEntries))

	var builds atomic.Int32

	release := make(chan struct{})

	build := func(context.Context) (record, error) {
		builds.Add(1)
		<-release

		return record{Leaves: 8}, nil
	}

	var wg sync.WaitGroup

	results := make([]record, testConcurrentGoroutines)

	for i := range testConcurrentGoroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, _, err := c.GetOrBuild(context.Background(), "shared", build)
			assert.NoError(t, err)

			results[i] = v
		}()
	}

	close(release)
	wg.Wait()

	assert.LessOrEqual(t, builds.Load(), int32(testConcurrentGoroutines))
	assert.GreaterOrEqual(t, builds.Load(), int32(1))

	for _, r := range results {
		assert.Equal(t, 8, r.Leaves)
	}
}

func TestCache_DiskTier(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	toState := func(r record) record { return r }
	fromState := func(r record) (record, error) { return r, nil }

	first := treecache.New(
		treecache.WithMaxEntries[record](smallMaxEntries),
		treecache.WithDisk(dir, persist.NewLZ4Codec(persist.NewGobCodec()), toState, fromState),
	)
	require.NoError(t, first.Put("plan", record{Leaves: 243}))

	second := treecache.New(
		treecache.WithMaxEntries[record](smallMaxEntries),
		treecache.WithDisk(dir, persist.NewLZ4Codec(persist.NewGobCodec()), toState, fromState),
	)

	v, ok := second.Get("plan")
	require.True(t, ok)
	assert.Equal(t, 243, v.Leaves)
	assert.Equal(t, int64(1), second.Stats().DiskHits)
	assert.Equal(t, 1, second.Len(), "disk hits are promoted")

	_, ok = second.Get("absent")
	assert.False(t, ok)
}

func TestCache_DiskTierRejectedStateIsMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := persist.NewJSONCodec()

	writer := treecache.New(
		treecache.WithMaxEntries[record](smallMaxEntries),
		treecache.WithDisk(dir, codec, func(r record) record { return r }, func(r record) (record, error) { return r, nil }),
	)
	require.NoError(t, writer.Put("plan", record{Leaves: 1}))

	reader := treecache.New(
		treecache.WithMaxEntries[record](smallMaxEntries),
		treecache.WithDisk(dir, codec, func(r record) record { return r }, func(record) (record, error) {
			return record{}, errBuild
		}),
	)

	_, ok := reader.Get("plan")
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxEntries[int](smallMaxEntries))
	require.NoError(t, c.Put("a", 1))

	c.Clear()

	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().CurrentSize)
}

func TestCache_GetOrBuildOutlivesCanceledCaller(t *testing.T) {
	t.Parallel()

	c := treecache.New(treecache.WithMaxEntries[record](smallMaxEntries))

	started := make(chan struct{})
	release := make(chan struct{})

	var builds atomic.Int32

	build := func(ctx context.Context) (record, error) {
		builds.Add(1)
		close(started)
		<-release

		if err := ctx.Err(); err != nil {
			return record{}, err
		}

		return record{Leaves: 27}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	firstErr := make(chan error, 1)

	go func() {
		_, _, err := c.GetOrBuild(ctx, "shared", build)
		firstErr <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan record, 1)

	go func() {
		v, _, err := c.GetOrBuild(context.Background(), "shared", build)
		assert.NoError(t, err)

		second <- v
	}()

	close(release)

	assert.Equal(t, 27, (<-second).Leaves)
	assert.Equal(t, int32(1), builds.Load())
}

func TestCache_DiskTierRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	codec := persist.NewGobCodec()
	identity := func(r record) record { return r }
	restore := func(r record) (record, error) { return r, nil }

	require.NoError(t, persist.SaveState(root, "outside", codec, &record{Leaves: 9}))

	c := treecache.New(
		treecache.WithMaxEntries[record](smallMaxEntries),
		treecache.WithDisk(filepath.Join(root, "cache"), codec, identity, restore),
	)

	for _, key := range []string{"../outside", `..\outside`, "..", "", "a/b"} {
		_, ok := c.Get(key)
		assert.False(t, ok, "key %q", key)

		err := c.Put(key, record{Leaves: 1})
		require.ErrorIs(t, err, treecache.ErrInvalidKey, "key %q", key)
	}

	assert.Zero(t, c.Stats().DiskHits)
}
