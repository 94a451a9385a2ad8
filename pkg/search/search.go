// Package search offers typo-tolerant lookup over glossary terms, their aliases
// and definitions, using an in-memory bleve index.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/japaniel/glossary/pkg/dictionary"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// ErrNotReady is returned by Search before the first Rebuild.
var ErrNotReady = errors.New("search index not built")

// Index abstracts the bleve index operations the Searcher needs.
type Index interface {
	SearchInContext(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)
	DocCount() (uint64, error)
	Close() error
}

// Hit is one matching term.
type Hit struct {
	TermID   string  `json:"term_id"`
	Term     string  `json:"term"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
}

// Searcher serves queries from the most recently built index.
type Searcher struct {
	mu    sync.RWMutex
	index Index
}

func NewSearcher() *Searcher {
	return &Searcher{}
}

func termMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	name := bleve.NewTextFieldMapping()
	name.Store = true
	name.Analyzer = standard.Name
	doc.AddFieldMappingsAt("term", name)

	aliases := bleve.NewTextFieldMapping()
	aliases.Store = true
	aliases.Analyzer = standard.Name
	doc.AddFieldMappingsAt("aliases", aliases)

	definition := bleve.NewTextFieldMapping()
	definition.Store = false
	definition.Analyzer = standard.Name
	doc.AddFieldMappingsAt("definition", definition)

	category := bleve.NewTextFieldMapping()
	category.Store = true
	category.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("category", category)

	im.AddDocumentMapping("term", doc)
	im.DefaultType = "term"
	return im
}

// Rebuild indexes terms into a fresh index, swaps it in and closes the previous one.
func (s *Searcher) Rebuild(terms []dictionary.Term) error {
	idx, err := bleve.NewMemOnly(termMapping())
	if err != nil {
		return fmt.Errorf("create search index: %w", err)
	}
	batch := idx.NewBatch()
	for _, t := range terms {
		doc := map[string]any{
			"term":       t.Term,
			"aliases":    t.Aliases,
			"definition": t.Definition,
			"category":   t.Category,
		}
		if err := batch.Index(t.ID, doc); err != nil {
			idx.Close()
			return fmt.Errorf("index term %s: %w", t.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("write search index: %w", err)
	}

	s.mu.Lock()
	old := s.index
	s.index = idx
	s.mu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

// Len returns the number of indexed terms.
func (s *Searcher) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return 0
	}
	n, err := s.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// buildQuery prefers the canonical term, then aliases, then definitions.
// Term and alias clauses tolerate one typo; the canonical term also matches by prefix.
func buildQuery(text string) query.Query {
	termQ := bleve.NewMatchQuery(text)
	termQ.SetField("term")
	termQ.SetFuzziness(1)
	termQ.SetBoost(3)

	aliasQ := bleve.NewMatchQuery(text)
	aliasQ.SetField("aliases")
	aliasQ.SetFuzziness(1)
	aliasQ.SetBoost(2)

	defQ := bleve.NewMatchQuery(text)
	defQ.SetField("definition")
	defQ.SetBoost(0.5)

	clauses := []query.Query{termQ, aliasQ, defQ}
	if fields := strings.Fields(strings.ToLower(text)); len(fields) == 1 {
		prefixQ := bleve.NewPrefixQuery(fields[0])
		prefixQ.SetField("term")
		prefixQ.SetBoost(2)
		clauses = append(clauses, prefixQ)
	}
	return bleve.NewDisjunctionQuery(clauses...)
}

// Search returns up to limit terms matching text, best first.
func (s *Searcher) Search(ctx context.Context, text string, limit int) ([]Hit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()
	if idx == nil {
		return nil, ErrNotReady
	}

	req := bleve.NewSearchRequestOptions(buildQuery(text), limit, 0, false)
	req.Fields = []string{"term", "category"}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search terms: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{TermID: h.ID, Score: h.Score}
		if v, ok := h.Fields["term"].(string); ok {
			hit.Term = v
		}
		if v, ok := h.Fields["category"].(string); ok {
			hit.Category = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close releases the current index.
func (s *Searcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}
