// Package similarity scores how close a generated answer is to its
// ground truth using TF-IDF weighted cosine similarity over the two
// texts.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

// Func scores two texts in [0, 1]. Evaluation accepts any implementation
// so tests can substitute a deterministic scorer.
type Func func(a, b string) float64

// Score computes TF-IDF cosine similarity between a and b. Identical
// token distributions score 1, disjoint vocabularies score 0.
func Score(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		if len(ta) == 0 && len(tb) == 0 {
			return 1
		}
		return 0
	}

	fa := termFreq(ta)
	fb := termFreq(tb)
	idf := inverseDocFreq(fa, fb)

	va := weigh(fa, idf)
	vb := weigh(fb, idf)

	return cosine(va, vb)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func termFreq(tokens []string) map[string]float64 {
	freq := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	n := float64(len(tokens))
	for t := range freq {
		freq[t] /= n
	}
	return freq
}

// inverseDocFreq computes smoothed IDF over the two-document corpus.
func inverseDocFreq(docs ...map[string]float64) map[string]float64 {
	n := float64(len(docs))
	counts := make(map[string]float64)
	for _, doc := range docs {
		for t := range doc {
			counts[t]++
		}
	}
	idf := make(map[string]float64, len(counts))
	for t, df := range counts {
		idf[t] = math.Log((n+1)/(df+1)) + 1
	}
	return idf
}

func weigh(tf, idf map[string]float64) map[string]float64 {
	v := make(map[string]float64, len(tf))
	for t, f := range tf {
		v[t] = f * idf[t]
	}
	return v
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for t, wa := range a {
		na += wa * wa
		if wb, ok := b[t]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		nb += wb * wb
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	}
	if sim < 0 {
		sim = 0
	}
	return sim
}
