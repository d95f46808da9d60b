package fewshot

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// DefaultK returns the retrieval depth for a complexity level: 3 for
// SIMPLE/MODERATE, 5 for COMPLEX.
func DefaultK(c types.Complexity) int {
	if c == types.ComplexityComplex {
		return 5
	}
	return 3
}

// Provider answers k-nearest-neighbor queries over the immutable catalog.
// Vectors are precomputed at construction; after that the provider is
// read-only and requires no locking.
type Provider struct {
	vectorizer *Vectorizer
	examples   []types.FewShotExample
	vectors    [][]float32
}

// NewProvider vectorizes the whole catalog up front. Vectorization runs in
// parallel across examples; the matrix is indexed identically to examples.
func NewProvider(ctx context.Context, catalog []types.FewShotExample) (*Provider, error) {
	timer := logging.StartTimer(logging.CategoryKNN, "NewProvider")
	defer timer.Stop()

	p := &Provider{
		vectorizer: NewVectorizer(),
		examples:   catalog,
		vectors:    make([][]float32, len(catalog)),
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range catalog {
		i := i
		g.Go(func() error {
			p.vectors[i] = p.vectorizer.Vectorize(catalog[i].Input + " " + catalog[i].Domain)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.KNN("Vectorizer ready: vocabulary=%d dims, cached vectors=%d", VocabularySize, len(p.vectors))
	return p, nil
}

// Size returns the catalog size.
func (p *Provider) Size() int { return len(p.examples) }

// FindExamples returns the k most similar catalog examples for the query,
// filtered by intent and complexity. When requireExpectedOutput is set (the
// refactor path) only examples carrying an expected output survive. If the
// filter leaves nothing, the complexity constraint is relaxed first, then the
// intent constraint; each relaxation is logged.
func (p *Provider) FindExamples(query string, intent types.Intent, complexity types.Complexity, k int, requireExpectedOutput bool) []types.FewShotExample {
	if k <= 0 {
		k = DefaultK(complexity)
	}

	idx := p.filter(intent, complexity, requireExpectedOutput)
	if len(idx) == 0 {
		logging.KNN("Filter empty for intent=%s complexity=%s; relaxing complexity", intent, complexity)
		idx = p.filter(intent, "", requireExpectedOutput)
	}
	if len(idx) == 0 {
		logging.KNN("Filter still empty for intent=%s; relaxing intent", intent)
		idx = p.filter("", "", requireExpectedOutput)
	}
	if len(idx) == 0 {
		return nil
	}

	// Score the surviving candidates in one fused pass.
	queryVec := p.vectorizer.Vectorize(query)
	matrix := make([][]float32, len(idx))
	for i, ci := range idx {
		matrix[i] = p.vectors[ci]
	}
	scores := scoreAll(matrix, queryVec)

	type candidate struct {
		catalogIdx int
		score      float64
	}
	cands := make([]candidate, len(idx))
	for i, ci := range idx {
		cands[i] = candidate{catalogIdx: ci, score: scores[i]}
	}

	// Top-k by similarity; ties broken by validator score, then stable id.
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].score != cands[b].score {
			return cands[a].score > cands[b].score
		}
		ea, eb := p.examples[cands[a].catalogIdx], p.examples[cands[b].catalogIdx]
		if ea.ValidatorScore != eb.ValidatorScore {
			return ea.ValidatorScore > eb.ValidatorScore
		}
		return ea.ID < eb.ID
	})

	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]types.FewShotExample, len(cands))
	for i, c := range cands {
		out[i] = p.examples[c.catalogIdx]
	}
	logging.KNN("FindExamples: intent=%s complexity=%s k=%d returned=%d", intent, complexity, k, len(out))
	return out
}

// filter returns catalog indices matching the constraints. Empty intent or
// complexity means "any".
func (p *Provider) filter(intent types.Intent, complexity types.Complexity, requireExpectedOutput bool) []int {
	var idx []int
	for i, ex := range p.examples {
		if intent != "" && ex.Intent != intent {
			continue
		}
		if complexity != "" && ex.Complexity != complexity {
			continue
		}
		if requireExpectedOutput && !ex.HasExpectedOutput {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}
