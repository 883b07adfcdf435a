package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryRanksTitleMatchesFirst(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.Add(Document{
		URL:     "https://a.test/guide",
		Title:   "Coffee brewing guide",
		Content: "How to brew coffee at home.",
	})
	idx.Add(Document{
		URL:     "https://b.test/blog",
		Title:   "Morning routines",
		Content: "I always start with coffee.",
	})
	idx.Add(Document{
		URL:     "https://c.test/tea",
		Title:   "Tea basics",
		Content: "Steeping green tea.",
	})

	hits, err := idx.Query(context.Background(), "coffee", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "https://a.test/guide", hits[0].URL)
	require.Equal(t, "https://b.test/blog", hits[1].URL)
	require.Greater(t, hits[0].Relevance, hits[1].Relevance)
}

func TestQueryPartialMatchScoresFraction(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.Add(Document{
		URL:     "https://a.test/",
		Content: "espresso machines reviewed",
	})

	hits, err := idx.Query(context.Background(), "espresso grinder", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 0.5, hits[0].Relevance)
}

func TestQueryHonorsLimitDeterministically(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.Add(Document{URL: "https://b.test/", Content: "shared term"})
	idx.Add(Document{URL: "https://a.test/", Content: "shared term"})
	idx.Add(Document{URL: "https://c.test/", Content: "shared term"})

	hits, err := idx.Query(context.Background(), "shared", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "https://a.test/", hits[0].URL)
	require.Equal(t, "https://b.test/", hits[1].URL)
}

func TestQueryEmptyTerm(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.Add(Document{URL: "https://a.test/", Content: "anything"})

	hits, err := idx.Query(context.Background(), "   ", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}
