package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestAcceptsYear(t *testing.T) {
	open := SearchConfig{}
	assert.True(t, open.AcceptsYear(0, false))
	assert.True(t, open.AcceptsYear(1950, true))

	bounded := SearchConfig{StartYear: intPtr(2000), EndYear: intPtr(2010)}
	assert.True(t, bounded.AcceptsYear(2000, true))
	assert.True(t, bounded.AcceptsYear(2010, true))
	assert.False(t, bounded.AcceptsYear(1999, true))
	assert.False(t, bounded.AcceptsYear(2011, true))
	assert.False(t, bounded.AcceptsYear(0, false))

	startOnly := SearchConfig{StartYear: intPtr(2015)}
	assert.True(t, startOnly.AcceptsYear(2024, true))
	assert.False(t, startOnly.AcceptsYear(2014, true))
}

func TestParseYear(t *testing.T) {
	y, ok := ParseYear("1999-03-31")
	assert.True(t, ok)
	assert.Equal(t, 1999, y)

	_, ok = ParseYear("")
	assert.False(t, ok)
	_, ok = ParseYear("19x9-01-01")
	assert.False(t, ok)

	_, ok = Movie{}.ReleaseYear()
	assert.False(t, ok)
}

func TestToMovie(t *testing.T) {
	m := RawMetadata{ID: 27205, Title: "  Inception ", ReleaseDate: "2010-07-15", PosterPath: ""}.ToMovie()
	assert.Equal(t, int64(27205), m.TMDBID)
	assert.Equal(t, "Inception", m.Title)
	assert.Nil(t, m.PosterPath)
	assert.NotNil(t, m.GenreIDs)
	year, ok := m.ReleaseYear()
	assert.True(t, ok)
	assert.Equal(t, 2010, year)
}

func TestIntentBranchPriority(t *testing.T) {
	assert.Equal(t, BranchDirector, ParsedIntent{Director: "Nolan", Titles: []string{"Heat"}}.Branch())
	assert.Equal(t, BranchTitles, ParsedIntent{Titles: []string{"Heat"}}.Branch())
	assert.Equal(t, BranchSemantic, ParsedIntent{StartYear: intPtr(1990)}.Branch())
	assert.Equal(t, BranchSemantic, KeywordIntent("space").Branch())

	assert.True(t, ParsedIntent{EndYear: intPtr(1990)}.HasStructuredFields())
	assert.False(t, ParsedIntent{Titles: []string{"Heat"}}.HasStructuredFields())
}
