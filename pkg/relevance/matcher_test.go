package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memkitt/internal/store"
)

func TestKeywords(t *testing.T) {
	words := Keywords("The user enjoys GREEN tea, and hiking!")

	assert.Contains(t, words, "green")
	assert.Contains(t, words, "tea")
	assert.Contains(t, words, "hiking")
	assert.NotContains(t, words, "the", "stopwords must be filtered")
	assert.NotContains(t, words, "and", "stopwords must be filtered")
	assert.NotContains(t, words, "GREEN", "keywords must be lowercased")
}

func TestKeywordsDropsShortTokens(t *testing.T) {
	words := Keywords("go to rv #7")
	assert.NotContains(t, words, "go")
	assert.NotContains(t, words, "rv")
	assert.NotContains(t, words, "7")
}

func TestBuildAndMatch(t *testing.T) {
	memories := []store.Memory{
		{ID: 1, Kind: "profile", Content: "prefers green tea", CreatedAt: 100},
		{ID: 2, Kind: "note", Content: "training toward a marathon", CreatedAt: 200},
		{ID: 3, Kind: "profile", Content: "allergic to peanuts", CreatedAt: 300},
	}

	m, err := Build(memories)
	require.NoError(t, err)

	results := m.Match("which green tea should I drink before the marathon?", 0)
	require.Len(t, results, 2)

	// Two keyword hits beat one, regardless of recency.
	assert.Equal(t, int64(1), results[0].Memory.ID)
	assert.Equal(t, 2, results[0].Score)
	assert.Equal(t, int64(2), results[1].Memory.ID)
	assert.Equal(t, 1, results[1].Score)
}

func TestMatchLimit(t *testing.T) {
	memories := []store.Memory{
		{ID: 1, Content: "green tea", CreatedAt: 100},
		{ID: 2, Content: "green apples", CreatedAt: 200},
	}

	m, err := Build(memories)
	require.NoError(t, err)

	results := m.Match("anything green", 1)
	require.Len(t, results, 1)
	// Equal score: recency breaks the tie.
	assert.Equal(t, int64(2), results[0].Memory.ID)
}

func TestMatchRequiresWholeTokens(t *testing.T) {
	memories := []store.Memory{
		{ID: 1, Content: "likes tea", CreatedAt: 100},
	}

	m, err := Build(memories)
	require.NoError(t, err)

	assert.Empty(t, m.Match("the team cleaned the steam room", 0))
	assert.Len(t, m.Match("tea time", 0), 1)
}

func TestMatchOnEmptyIndex(t *testing.T) {
	m, err := Build(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Match("anything at all", 0))

	// Memories with only stopwords produce no patterns either.
	m, err = Build([]store.Memory{{ID: 1, Content: "and or but"}})
	require.NoError(t, err)
	assert.Empty(t, m.Match("and or but", 0))
}
