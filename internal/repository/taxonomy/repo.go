// Package taxonomy implements the code store repository: lookup and search
// over HS nomenclature entries persisted as Redis hashes behind an
// FT.SEARCH index.
package taxonomy

import (
	"context"
	"fmt"

	"github.com/clearfreight/hscodex/internal/db"
	"github.com/clearfreight/hscodex/internal/domain"
)

// store is the consumer interface for taxonomy operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchPrefix(ctx context.Context, q *db.PrefixQuery) (*db.SearchResult, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Match pairs an entry with a retrieval-method-local score.
type Match struct {
	Entry domain.TaxonomyEntry
	Score float64
}

// Repo is the taxonomy code store.
type Repo struct {
	store       store
	indexName   string
	vectorDim   int
	keywordizer func(string) []string
}

// New creates a taxonomy repository.
func New(s store, indexName string, vectorDim int) *Repo {
	return &Repo{store: s, indexName: indexName, vectorDim: vectorDim}
}

// WithKeywordizer derives keywords from the description on Upsert for
// entries that carry none.
func (r *Repo) WithKeywordizer(fn func(string) []string) *Repo {
	r.keywordizer = fn
	return r
}

// returnFields are the hash fields fetched on every search hit.
var returnFields = []string{fieldCode, fieldDescription, fieldKeywords, fieldSynonyms}

// EnsureIndex creates the entry search index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName,
		Prefixes: []string{entryKeyPrefix},
		Fields: []db.IndexField{
			{Name: fieldCode, Type: db.IndexFieldTag},
			{Name: fieldSearchText, Type: db.IndexFieldText},
			{
				Name:           fieldVector,
				Type:           db.IndexFieldVector,
				VectorAlgo:     db.VectorHNSW,
				VectorDim:      r.vectorDim,
				VectorDistance: db.DistanceCosine,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && err != db.ErrIndexExists {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert stores taxonomy entries as hashes in a single pipelined round-trip.
func (r *Repo) Upsert(ctx context.Context, entries []domain.TaxonomyEntry) error {
	items := make([]db.HashSetItem, 0, len(entries))
	for _, e := range entries {
		if !domain.ValidCode(e.Code) {
			return fmt.Errorf("invalid code %q", e.Code)
		}
		if len(e.Keywords) == 0 && r.keywordizer != nil {
			e.Keywords = r.keywordizer(e.Description)
		}
		items = append(items, db.HashSetItem{Key: entryKey(e.Code), Fields: entryToFields(e)})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert entries: %w", err)
	}
	return nil
}

// Get fetches one entry by exact code. Returns domain.ErrNoCandidates-free
// semantics: a missing entry is (zero, false, nil).
func (r *Repo) Get(ctx context.Context, code string) (domain.TaxonomyEntry, bool, error) {
	fields, err := r.store.HGetAll(ctx, entryKey(code))
	if err != nil {
		return domain.TaxonomyEntry{}, false, fmt.Errorf("get entry: %w", err)
	}
	if len(fields) == 0 {
		return domain.TaxonomyEntry{}, false, nil
	}
	e, err := entryFromFields(fields)
	if err != nil {
		return domain.TaxonomyEntry{}, false, err
	}
	return e, true, nil
}

// FindByKeywords searches entries whose description, keywords or synonyms
// contain any of the tokens. Scores are the text engine's, monotonic in
// match count but not comparable to vector similarities.
func (r *Repo) FindByKeywords(ctx context.Context, tokens []string, topK int) ([]Match, error) {
	res, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName:    r.indexName,
		Field:        fieldSearchText,
		Tokens:       tokens,
		TopK:         topK,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return matchesFromResult(res)
}

// NearestByEmbedding runs KNN search and filters out hits below minSimilarity.
func (r *Repo) NearestByEmbedding(
	ctx context.Context, vector []float32, k int, minSimilarity float64,
) ([]Match, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName,
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	matches, err := matchesFromResult(res)
	if err != nil {
		return nil, err
	}

	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= minSimilarity {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// FindByPrefix fetches every entry under a code prefix.
func (r *Repo) FindByPrefix(ctx context.Context, prefix string, limit int) ([]domain.TaxonomyEntry, error) {
	res, err := r.store.SearchPrefix(ctx, &db.PrefixQuery{
		IndexName:    r.indexName,
		Field:        fieldCode,
		Prefix:       prefix,
		Limit:        limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("prefix search: %w", err)
	}

	entries := make([]domain.TaxonomyEntry, 0, len(res.Entries))
	for _, hit := range res.Entries {
		e, err := entryFromFields(hit.Fields)
		if err != nil {
			continue // skip malformed documents, the rest are still usable
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FindChildren returns the direct children of a code in the tree.
func (r *Repo) FindChildren(ctx context.Context, code string) ([]domain.TaxonomyEntry, error) {
	all, err := r.FindByPrefix(ctx, code, 0)
	if err != nil {
		return nil, err
	}

	children := all[:0]
	for _, e := range all {
		if domain.IsChildOf(e.Code, code) {
			children = append(children, e)
		}
	}
	return children, nil
}

// FindDescendants returns every entry strictly below a code in the tree.
func (r *Repo) FindDescendants(ctx context.Context, code string) ([]domain.TaxonomyEntry, error) {
	all, err := r.FindByPrefix(ctx, code, 0)
	if err != nil {
		return nil, err
	}

	descendants := all[:0]
	for _, e := range all {
		if domain.IsDescendantOf(e.Code, code) {
			descendants = append(descendants, e)
		}
	}
	return descendants, nil
}

// Siblings returns entries sharing the same parent as code, excluding code
// itself. Used by catch-all resolution.
func (r *Repo) Siblings(ctx context.Context, code string) ([]domain.TaxonomyEntry, error) {
	parent := domain.ParentCode(code)
	if parent == "" {
		return nil, nil
	}

	children, err := r.FindChildren(ctx, parent)
	if err != nil {
		return nil, err
	}

	siblings := children[:0]
	for _, e := range children {
		if e.Code != code {
			siblings = append(siblings, e)
		}
	}
	return siblings, nil
}

func matchesFromResult(res *db.SearchResult) ([]Match, error) {
	matches := make([]Match, 0, len(res.Entries))
	for _, hit := range res.Entries {
		e, err := entryFromFields(hit.Fields)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Entry: e, Score: hit.Score})
	}
	return matches, nil
}
