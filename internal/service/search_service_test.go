package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/cinesearch/internal/model"
)

// fixedClassifier 直接返回预设意图
type fixedClassifier struct {
	intent model.ParsedIntent
}

func (f fixedClassifier) Classify(context.Context, string, model.SearchConfig) model.ParsedIntent {
	return f.intent
}

type searchFixture struct {
	store    *fakeStore
	index    *fakeIndex
	provider *fakeProvider
}

func newSearchFixture() *searchFixture {
	return &searchFixture{store: newFakeStore(), index: newFakeIndex(), provider: newFakeProvider()}
}

func (f *searchFixture) service(intent model.ParsedIntent) *SearchService {
	dedup := NewDedupManager(f.store, f.index, f.provider)
	return NewSearchService(fixedClassifier{intent}, dedup, f.store, f.index, f.provider, 10)
}

func TestRunDirectorBranch(t *testing.T) {
	f := newSearchFixture()
	f.provider.people["christopher nolan"] = []model.PersonRecord{{ID: 525, Name: "Christopher Nolan"}}
	f.provider.credits[525] = []model.RawMetadata{
		raw(1, "Following", "1998-09-12", 5),
		raw(2, "Inception", "2010-07-15", 80),
		raw(3, "Memento", "2000-10-11", 30),
		{ID: 4, Title: ""},
	}
	f.index.hits = []model.VectorHit{{TMDBID: 2, Distance: 0.1, Certainty: 0.95}}

	intent := model.ParsedIntent{Director: "Christopher Nolan", Titles: []string{"ignored"}}
	res := f.service(intent).Run(context.Background(), "nolan", model.SearchConfig{StartYear: intPtr(2005)})

	assert.Equal(t, model.BranchDirector, res.Branch)
	require.Len(t, res.ProviderResults, 3)
	assert.Equal(t, []int64{2, 3, 1}, ids(res.ProviderResults))
	require.NotNil(t, res.ProviderResults[0].DirectorName)
	assert.Equal(t, "Christopher Nolan", *res.ProviderResults[0].DirectorName)
	assert.Empty(t, res.VectorResults)
	assert.Equal(t, 3, f.store.rowCount())
	assert.Equal(t, 3, f.index.count())
}

func TestRunDirectorUnknownPerson(t *testing.T) {
	f := newSearchFixture()
	res := f.service(model.ParsedIntent{Director: "Nobody"}).Run(context.Background(), "q", model.SearchConfig{})

	assert.Equal(t, model.BranchDirector, res.Branch)
	assert.NotNil(t, res.ProviderResults)
	assert.Empty(t, res.ProviderResults)
	assert.Empty(t, res.Error)
}

func TestRunDirectorPersistFailureKeepsCandidates(t *testing.T) {
	f := newSearchFixture()
	f.store.failWrite = errProvider
	f.provider.people["x"] = []model.PersonRecord{{ID: 1}}
	f.provider.credits[1] = []model.RawMetadata{raw(10, "A", "", 1)}

	res := f.service(model.ParsedIntent{Director: "x"}).Run(context.Background(), "q", model.SearchConfig{})
	assert.Equal(t, []int64{10}, ids(res.ProviderResults))
	assert.Zero(t, f.index.count())
}

func TestRunTitlesBranchPreservesOrder(t *testing.T) {
	f := newSearchFixture()
	f.store = newFakeStore(movie(100, "Heat", "1995"))
	f.provider.byText["ronin"] = []model.RawMetadata{raw(200, "Ronin", "1998", 1)}
	f.provider.byText["collateral"] = []model.RawMetadata{raw(300, "Collateral", "2004", 1)}

	intent := model.ParsedIntent{Titles: []string{"Ronin", "Missing Film", "Heat", "Collateral", "heat"}}
	res := f.service(intent).Run(context.Background(), "crime", model.SearchConfig{})

	assert.Equal(t, model.BranchTitles, res.Branch)
	assert.Equal(t, []int64{200, 100, 300}, ids(res.ProviderResults))
	assert.Empty(t, res.VectorResults)
	// Heat 命中本地，只为 3 个未命中的片名请求 TMDB
	assert.Equal(t, 3, f.provider.textCallCount())
}

func TestRunSemanticYearBoundary(t *testing.T) {
	f := newSearchFixture()
	f.store = newFakeStore(
		movie(1, "Old", "1998-05-01"),
		movie(2, "Mid", "2005-05-01"),
		movie(3, "New", "2012-05-01"),
		movie(4, "Undated", ""),
	)
	f.index.hits = []model.VectorHit{
		{TMDBID: 3, Distance: 0.1, Certainty: 0.95},
		{TMDBID: 4, Distance: 0.2, Certainty: 0.9},
		{TMDBID: 2, Distance: 0.3, Certainty: 0.85},
		{TMDBID: 1, Distance: 0.4, Certainty: 0.8},
	}
	svc := f.service(model.KeywordIntent("q"))

	bounded := svc.Run(context.Background(), "q", model.SearchConfig{StartYear: intPtr(2000), EndYear: intPtr(2010)})
	require.Len(t, bounded.VectorResults, 1)
	assert.Equal(t, int64(2), bounded.VectorResults[0].TMDBID)
	assert.InDelta(t, 0.85, bounded.VectorResults[0].Certainty, 1e-9)

	unbounded := svc.Run(context.Background(), "q", model.SearchConfig{})
	assert.Equal(t, []int64{3, 4, 2, 1}, scoredIDs(unbounded.VectorResults))
	assert.Empty(t, unbounded.ProviderResults)
	assert.Zero(t, f.provider.textCallCount())
}

func TestRunSemanticUsesIntentYearsWhenConfigHasNone(t *testing.T) {
	f := newSearchFixture()
	f.store = newFakeStore(movie(1, "Old", "1998"), movie(2, "Mid", "2005"))
	f.index.hits = []model.VectorHit{{TMDBID: 1}, {TMDBID: 2}}

	intent := model.ParsedIntent{StartYear: intPtr(2000), Keywords: []string{"q"}}
	res := f.service(intent).Run(context.Background(), "q", model.SearchConfig{})
	assert.Equal(t, []int64{2}, scoredIDs(res.VectorResults))
}

func TestRunSemanticWithEnrichment(t *testing.T) {
	f := newSearchFixture()
	f.store = newFakeStore(movie(1, "Indexed", "2003"))
	f.index.hits = []model.VectorHit{{TMDBID: 1, Distance: 0.2, Certainty: 0.9}}
	f.provider.byText["space opera"] = []model.RawMetadata{
		raw(1, "Indexed", "2003", 1),
		raw(2, "Fresh", "2008", 1),
		raw(3, "Too Old", "1977", 1),
	}

	cfg := model.SearchConfig{StartYear: intPtr(2000), EnrichFromProvider: true}
	res := f.service(model.KeywordIntent("space opera")).Run(context.Background(), "space opera", cfg)

	assert.Equal(t, []int64{1}, scoredIDs(res.VectorResults))
	assert.Equal(t, []int64{1, 2}, ids(res.ProviderResults))
	// 未过滤的新记录也会入库
	assert.Equal(t, [][]int64{{2, 3}}, f.store.upserts)
}

func TestRunDegradesOnProviderAndIndexFailure(t *testing.T) {
	f := newSearchFixture()
	f.provider.err = errProvider
	f.index.searchErr = errProvider

	res := f.service(model.KeywordIntent("q")).Run(context.Background(), "q", model.SearchConfig{EnrichFromProvider: true})
	assert.NotNil(t, res.VectorResults)
	assert.NotNil(t, res.ProviderResults)
	assert.Empty(t, res.VectorResults)
	assert.Empty(t, res.ProviderResults)
	assert.Empty(t, res.Error)
}

func TestRunEmptyQuery(t *testing.T) {
	res := newSearchFixture().service(model.ParsedIntent{}).Run(context.Background(), "   ", model.SearchConfig{})
	assert.Equal(t, ErrEmptyQuery.Error(), res.Error)
}

func ids(movies []model.Movie) []int64 {
	out := make([]int64, len(movies))
	for i, m := range movies {
		out[i] = m.TMDBID
	}
	return out
}

func scoredIDs(movies []model.ScoredMovie) []int64 {
	out := make([]int64, len(movies))
	for i, m := range movies {
		out[i] = m.TMDBID
	}
	return out
}
