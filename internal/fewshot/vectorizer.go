// Package fewshot provides semantic retrieval of curated few-shot examples.
// The catalog is loaded once at startup, each example is vectorized with a
// fixed-vocabulary character-bigram model, and queries are answered with
// cosine similarity over the precomputed matrix.
package fewshot

import (
	"math"
	"strings"
)

// The vectorizer's alphabet: lowercase letters, digits, and space. Every
// other rune is mapped to space before bigram extraction. The vocabulary is
// therefore fixed at alphabetSize^2 = 1369 bigram dimensions.
const alphabetSize = 37

// VocabularySize is the dimensionality of every vector the vectorizer emits.
const VocabularySize = alphabetSize * alphabetSize

// Vectorizer converts text into L2-normalized character-bigram count vectors.
// It is stateless and safe for concurrent use.
type Vectorizer struct{}

// NewVectorizer returns the fixed-vocabulary bigram vectorizer.
func NewVectorizer() *Vectorizer { return &Vectorizer{} }

func charIndex(r rune) int {
	switch {
	case r >= 'a' && r <= 'z':
		return int(r - 'a')
	case r >= '0' && r <= '9':
		return 26 + int(r-'0')
	default:
		return 36 // space bucket
	}
}

// Vectorize returns the normalized bigram vector for text. The vector always
// has VocabularySize dimensions; a vector for empty text is all zeros.
func (v *Vectorizer) Vectorize(text string) []float32 {
	vec := make([]float32, VocabularySize)
	runes := []rune(strings.ToLower(text))
	if len(runes) < 2 {
		return vec
	}

	prev := charIndex(runes[0])
	for _, r := range runes[1:] {
		cur := charIndex(r)
		vec[prev*alphabetSize+cur]++
		prev = cur
	}

	// L2-normalize so cosine similarity reduces to a dot product.
	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// scoreAll computes the cosine similarity of the query against every row of
// the matrix in one fused pass. Rows and query are already L2-normalized, so
// similarity is the plain dot product. Iterating the query's non-zero
// dimensions on the outside keeps the inner loop a dense column accumulate
// instead of a per-example cosine call.
func scoreAll(matrix [][]float32, query []float32) []float64 {
	scores := make([]float64, len(matrix))
	for dim, q := range query {
		if q == 0 {
			continue
		}
		qf := float64(q)
		for row, vec := range matrix {
			scores[row] += qf * float64(vec[dim])
		}
	}
	return scores
}
