package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/user/cinesearch/internal/model"
)

// fakeStore 内存目录，记录调用顺序
type fakeStore struct {
	mu        sync.Mutex
	movies    map[int64]model.Movie
	upserts   [][]int64
	failWrite error
	events    *[]string
}

func newFakeStore(seed ...model.Movie) *fakeStore {
	s := &fakeStore{movies: make(map[int64]model.Movie)}
	for _, m := range seed {
		s.movies[m.TMDBID] = m
	}
	return s
}

func (s *fakeStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.movies[id]
	return ok, nil
}

func (s *fakeStore) ExistingIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool)
	for _, id := range ids {
		if _, ok := s.movies[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertBatch(_ context.Context, movies []model.Movie) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events != nil {
		*s.events = append(*s.events, "catalog")
	}
	if s.failWrite != nil {
		return 0, s.failWrite
	}
	ids := make([]int64, 0, len(movies))
	for _, m := range movies {
		s.movies[m.TMDBID] = m
		ids = append(ids, m.TMDBID)
	}
	s.upserts = append(s.upserts, ids)
	return int64(len(movies)), nil
}

func (s *fakeStore) GetByIDs(_ context.Context, ids []int64) ([]model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Movie
	for _, id := range ids {
		if m, ok := s.movies[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) GetByTitle(_ context.Context, title string) (*model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.movies {
		if strings.EqualFold(m.Title, title) {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ClearAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movies = make(map[int64]model.Movie)
	return nil
}

func (s *fakeStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.movies)
}

// fakeIndex 记录写入的向量 id
type fakeIndex struct {
	mu        sync.Mutex
	indexed   map[int64]bool
	hits      []model.VectorHit
	searchErr error
	recreated int
	events    *[]string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{indexed: make(map[int64]bool)}
}

func (f *fakeIndex) UpsertMovies(_ context.Context, movies []model.Movie) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events != nil {
		*f.events = append(*f.events, "vector")
	}
	for _, m := range movies {
		f.indexed[m.TMDBID] = true
	}
	return len(movies), nil
}

func (f *fakeIndex) NearestNeighbors(_ context.Context, _ string, limit int) ([]model.VectorHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) Recreate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recreated++
	f.indexed = make(map[int64]bool)
	return nil
}

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

// fakeProvider 固定返回值的 TMDB
type fakeProvider struct {
	mu          sync.Mutex
	byText      map[string][]model.RawMetadata
	people      map[string][]model.PersonRecord
	credits     map[int64][]model.RawMetadata
	err         error
	textCalls   int
	personCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		byText:  make(map[string][]model.RawMetadata),
		people:  make(map[string][]model.PersonRecord),
		credits: make(map[int64][]model.RawMetadata),
	}
}

func (p *fakeProvider) SearchByText(_ context.Context, query string) ([]model.RawMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textCalls++
	if p.err != nil {
		return nil, p.err
	}
	return p.byText[strings.ToLower(query)], nil
}

func (p *fakeProvider) SearchPerson(_ context.Context, name string) ([]model.PersonRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.personCalls++
	if p.err != nil {
		return nil, p.err
	}
	return p.people[strings.ToLower(name)], nil
}

func (p *fakeProvider) GetDirectorCredits(_ context.Context, id int64) ([]model.RawMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.credits[id], nil
}

func (p *fakeProvider) textCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textCalls
}

// scriptedLLM 按提示词关键字返回预设回复
type scriptedLLM struct {
	mu         sync.Mutex
	structured string
	titles     string
	err        error
	calls      []string
}

func (l *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kind := "titles"
	if strings.Contains(prompt, "structured movie search filters") {
		kind = "structured"
	}
	l.calls = append(l.calls, kind)
	if l.err != nil {
		return "", l.err
	}
	if kind == "structured" {
		return l.structured, nil
	}
	return l.titles, nil
}

var errProvider = errors.New("provider unavailable")

func raw(id int64, title, date string, popularity float64) model.RawMetadata {
	return model.RawMetadata{
		ID:          id,
		Title:       title,
		Overview:    title + " overview",
		ReleaseDate: date,
		Popularity:  popularity,
		VoteAverage: 7,
		VoteCount:   100,
	}
}

func movie(id int64, title, date string) model.Movie {
	return raw(id, title, date, 1).ToMovie()
}

func intPtr(v int) *int { return &v }
