package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/cinesearch/internal/model"
)

func TestEnsureIsIdempotent(t *testing.T) {
	store := newFakeStore()
	index := newFakeIndex()
	d := NewDedupManager(store, index, newFakeProvider())
	ctx := context.Background()

	first, err := d.Ensure(ctx, []model.RawMetadata{raw(1, "A", "2001-01-01", 5), raw(2, "B", "", 3), raw(1, "A", "2001-01-01", 5)})
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := d.Ensure(ctx, []model.RawMetadata{raw(2, "B", "", 3), raw(3, "C", "1999", 1)})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, int64(3), second[0].TMDBID)

	assert.Equal(t, [][]int64{{1, 2}, {3}}, store.upserts)
	assert.Equal(t, 3, store.rowCount())
	assert.Equal(t, 3, index.count())
}

func TestEnsureAllExistingWritesNothing(t *testing.T) {
	store := newFakeStore(movie(1, "A", ""))
	index := newFakeIndex()
	d := NewDedupManager(store, index, nil)

	fresh, err := d.Ensure(context.Background(), []model.RawMetadata{raw(1, "A", "", 1)})
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Empty(t, store.upserts)
	assert.Zero(t, index.count())
}

func TestEnsureWritesCatalogBeforeVectors(t *testing.T) {
	var events []string
	store := newFakeStore()
	store.events = &events
	index := newFakeIndex()
	index.events = &events

	_, err := NewDedupManager(store, index, nil).Ensure(context.Background(), []model.RawMetadata{raw(7, "G", "", 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog", "vector"}, events)
}

func TestEnsureCatalogFailureSkipsVectors(t *testing.T) {
	var events []string
	store := newFakeStore()
	store.failWrite = errors.New("tx rolled back")
	store.events = &events
	index := newFakeIndex()
	index.events = &events

	fresh, err := NewDedupManager(store, index, nil).Ensure(context.Background(), []model.RawMetadata{raw(7, "G", "", 1)})
	require.Error(t, err)
	assert.Nil(t, fresh)
	assert.Equal(t, []string{"catalog"}, events)
	assert.Zero(t, index.count())
}

func TestEnsureSkipsMalformedRecords(t *testing.T) {
	store := newFakeStore()
	d := NewDedupManager(store, newFakeIndex(), nil)

	bad := []model.RawMetadata{
		{ID: 0, Title: "no id"},
		{ID: 5, Title: "   "},
		{ID: 6, Title: "bad rating", VoteAverage: 11},
	}
	fresh, err := d.Ensure(context.Background(), append(bad, raw(8, "Good", "", 1)))
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, int64(8), fresh[0].TMDBID)

	for _, r := range bad {
		assert.ErrorIs(t, ValidateRecord(r), ErrMalformedRecord)
	}
}

func TestResolveByTitleCacheHit(t *testing.T) {
	store := newFakeStore(movie(42, "Heat", "1995-12-15"))
	provider := newFakeProvider()
	index := newFakeIndex()
	d := NewDedupManager(store, index, provider)

	m, err := d.ResolveByTitle(context.Background(), "heat")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(42), m.TMDBID)
	assert.Zero(t, provider.textCallCount())
	assert.Empty(t, store.upserts)
}

func TestResolveByTitleMissFetchesOnce(t *testing.T) {
	store := newFakeStore()
	provider := newFakeProvider()
	provider.byText["ronin"] = []model.RawMetadata{raw(8195, "Ronin", "1998-09-25", 10), raw(99, "Ronin 2", "", 1)}
	index := newFakeIndex()
	d := NewDedupManager(store, index, provider)

	m, err := d.ResolveByTitle(context.Background(), "Ronin")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(8195), m.TMDBID)
	assert.Equal(t, 1, provider.textCallCount())
	assert.Equal(t, 1, store.rowCount())
	assert.Equal(t, 1, index.count())

	// 第二次命中本地目录
	_, err = d.ResolveByTitle(context.Background(), "Ronin")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.textCallCount())
}

func TestResolveByTitleNotFound(t *testing.T) {
	provider := newFakeProvider()
	d := NewDedupManager(newFakeStore(), newFakeIndex(), provider)

	m, err := d.ResolveByTitle(context.Background(), "Nonexistent Film")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestEnsureDirectedSetsDirectorName(t *testing.T) {
	store := newFakeStore()
	d := NewDedupManager(store, newFakeIndex(), nil)

	fresh, err := d.EnsureDirected(context.Background(), "Michael Mann", []model.RawMetadata{raw(1, "Heat", "1995", 1)})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.NotNil(t, fresh[0].DirectorName)
	assert.Equal(t, "Michael Mann", *fresh[0].DirectorName)
}

// gatedProvider 在 gate 关闭前阻塞文本搜索，直到调用方的 ctx 结束
type gatedProvider struct {
	*fakeProvider
	entered chan struct{}
	gate    chan struct{}
}

func (p *gatedProvider) SearchByText(ctx context.Context, query string) ([]model.RawMetadata, error) {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	select {
	case <-p.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.fakeProvider.SearchByText(ctx, query)
}

func TestResolveByTitleTimeoutDoesNotLeakToOtherCallers(t *testing.T) {
	provider := &gatedProvider{
		fakeProvider: newFakeProvider(),
		entered:      make(chan struct{}, 1),
		gate:         make(chan struct{}),
	}
	provider.byText["ronin"] = []model.RawMetadata{raw(8195, "Ronin", "1998-09-25", 10)}
	store := newFakeStore()
	d := NewDedupManager(store, newFakeIndex(), provider)

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	shortErr := make(chan error, 1)
	go func() {
		_, err := d.ResolveByTitle(shortCtx, "Ronin")
		shortErr <- err
	}()
	<-provider.entered

	type outcome struct {
		m   *model.Movie
		err error
	}
	patient := make(chan outcome, 1)
	go func() {
		m, err := d.ResolveByTitle(context.Background(), "Ronin")
		patient <- outcome{m, err}
	}()

	assert.ErrorIs(t, <-shortErr, context.DeadlineExceeded)
	close(provider.gate)

	select {
	case got := <-patient:
		require.NoError(t, got.err)
		require.NotNil(t, got.m)
		assert.Equal(t, int64(8195), got.m.TMDBID)
	case <-time.After(5 * time.Second):
		t.Fatal("没有超时的调用方一直没有返回")
	}
	assert.Equal(t, 1, provider.textCallCount())
	assert.Equal(t, 1, store.rowCount())
}
