package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/cinesearch/internal/model"
)

func TestClassifyStructuredDirector(t *testing.T) {
	llm := &scriptedLLM{structured: "```json\n{\"director\": \"Christopher Nolan\", \"start_year\": \"2000\", \"end_year\": null}\n```"}
	c := NewClassifier(llm)

	intent := c.Classify(context.Background(), "nolan films after 2000", model.SearchConfig{})

	assert.Equal(t, "Christopher Nolan", intent.Director)
	require.NotNil(t, intent.StartYear)
	assert.Equal(t, 2000, *intent.StartYear)
	assert.Nil(t, intent.EndYear)
	assert.Equal(t, model.BranchDirector, intent.Branch())
	assert.Equal(t, []string{"structured"}, llm.calls)
}

func TestClassifyYearRangeOnly(t *testing.T) {
	llm := &scriptedLLM{structured: `Sure! {"director": null, "start_year": 1995, "end_year": 1990}`}
	intent := NewClassifier(llm).Classify(context.Background(), "90s thrillers", model.SearchConfig{})

	assert.Empty(t, intent.Director)
	require.NotNil(t, intent.StartYear)
	require.NotNil(t, intent.EndYear)
	assert.Equal(t, 1990, *intent.StartYear)
	assert.Equal(t, 1995, *intent.EndYear)
	assert.Equal(t, model.BranchSemantic, intent.Branch())
}

func TestClassifyFallsBackToTitles(t *testing.T) {
	llm := &scriptedLLM{
		structured: `{"director": null, "start_year": null, "end_year": null}`,
		titles:     `{"titles": ["Inception", "Interstellar", "inception"]}`,
	}
	intent := NewClassifier(llm).Classify(context.Background(), "mind bending space movies", model.SearchConfig{})

	assert.Equal(t, []string{"Inception", "Interstellar"}, intent.Titles)
	assert.Equal(t, model.BranchTitles, intent.Branch())
	assert.Equal(t, []string{"structured", "titles"}, llm.calls)
}

func TestClassifyQuotedFallbackReusesTitlesResponse(t *testing.T) {
	llm := &scriptedLLM{
		structured: "not json at all",
		titles:     `You might enjoy "Heat" and "Ronin", both great crime films.`,
	}
	intent := NewClassifier(llm).Classify(context.Background(), "crime films", model.SearchConfig{})

	assert.Equal(t, []string{"Heat", "Ronin"}, intent.Titles)
	assert.Equal(t, []string{"structured", "titles"}, llm.calls)
}

func TestClassifyDegradesToKeywords(t *testing.T) {
	cases := []struct {
		name string
		llm  *scriptedLLM
	}{
		{"llm error", &scriptedLLM{err: errProvider}},
		{"invalid json everywhere", &scriptedLLM{structured: "{broken", titles: "no idea, sorry"}},
		{"empty payloads", &scriptedLLM{structured: "{}", titles: `{"titles": []}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := NewClassifier(tc.llm).Classify(context.Background(), "something odd", model.SearchConfig{})
			assert.Equal(t, model.KeywordIntent("something odd"), intent)
			assert.Equal(t, model.BranchSemantic, intent.Branch())
		})
	}
}

func TestClassifySkipAndNilLLM(t *testing.T) {
	llm := &scriptedLLM{structured: `{"director": "Someone"}`}
	intent := NewClassifier(llm).Classify(context.Background(), "anything", model.SearchConfig{SkipClassifier: true})
	assert.Equal(t, model.KeywordIntent("anything"), intent)
	assert.Empty(t, llm.calls)

	intent = NewClassifier(nil).Classify(context.Background(), "anything", model.SearchConfig{})
	assert.Equal(t, model.KeywordIntent("anything"), intent)
}

func TestClassifyIsIdempotent(t *testing.T) {
	llm := &scriptedLLM{structured: `{"director": "Greta Gerwig"}`}
	c := NewClassifier(llm)
	first := c.Classify(context.Background(), "gerwig", model.SearchConfig{})
	second := c.Classify(context.Background(), "gerwig", model.SearchConfig{})
	assert.Equal(t, first, second)
}
