// Package memory provides a naive in-process document index. It backs
// development and test deployments; production points the search
// service at a real index behind the same interface.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/minasearch/frontier/internal/search"
)

// Document is one indexed page.
type Document struct {
	URL     string
	Title   string
	Content string
}

// Index holds documents and serves term lookups.
type Index struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// New returns an empty Index.
func New() *Index {
	return &Index{docs: make(map[string]Document)}
}

// Add inserts or replaces a document, keyed by URL.
func (i *Index) Add(doc Document) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs[doc.URL] = doc
}

// Query scores every document against the term: the fraction of the
// term's words present in the document, with a small boost for title
// matches. Results are sorted by relevance descending, URL ascending.
func (i *Index) Query(_ context.Context, term string, limit int) ([]search.IndexHit, error) {
	words := strings.Fields(search.Normalize(term))
	if len(words) == 0 {
		return nil, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	var hits []search.IndexHit
	for _, doc := range i.docs {
		title := search.Normalize(doc.Title)
		body := search.Normalize(doc.Content)
		matched := 0
		inTitle := false
		for _, w := range words {
			if strings.Contains(body, w) || strings.Contains(title, w) {
				matched++
				if strings.Contains(title, w) {
					inTitle = true
				}
			}
		}
		if matched == 0 {
			continue
		}
		relevance := float64(matched) / float64(len(words))
		if inTitle {
			relevance = relevance*0.75 + 0.25
		}
		hits = append(hits, search.IndexHit{
			URL:       doc.URL,
			Title:     doc.Title,
			Relevance: relevance,
		})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Relevance != hits[b].Relevance {
			return hits[a].Relevance > hits[b].Relevance
		}
		return hits[a].URL < hits[b].URL
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
