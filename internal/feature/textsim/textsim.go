// Package textsim implements the TextComparer capability: bag-of-words and
// TF-IDF cosine similarity over OCR text, averaged and scaled to a
// percentage, plus optional OCR-artifact preprocessing.
package textsim

import (
	"math"
	"regexp"
	"strings"
)

// Comparer scores text pairs. Stateless apart from configuration; safe for
// concurrent use.
type Comparer struct {
	preprocess bool
}

func NewComparer(preprocess bool) *Comparer {
	return &Comparer{preprocess: preprocess}
}

// Similarity returns the averaged BoW and TF-IDF cosine similarity of the two
// texts as a percentage in [0, 100].
func (c *Comparer) Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	vocab := buildVocab(ta, tb)
	ca, cb := counts(ta, vocab), counts(tb, vocab)

	bow := cosine(ca, cb)
	tfidf := cosine(applyIDF(ca, cb), applyIDF(cb, ca))
	return (bow + tfidf) / 2 * 100
}

var reToken = regexp.MustCompile(`[a-z0-9]{2,}`)

func tokenize(s string) []string {
	return reToken.FindAllString(strings.ToLower(s), -1)
}

func buildVocab(docs ...[]string) map[string]int {
	vocab := make(map[string]int)
	for _, doc := range docs {
		for _, tok := range doc {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}
	return vocab
}

func counts(doc []string, vocab map[string]int) []float64 {
	vec := make([]float64, len(vocab))
	for _, tok := range doc {
		vec[vocab[tok]]++
	}
	return vec
}

// applyIDF reweights term counts with smoothed inverse document frequency
// over the two-document corpus: idf = ln((1+n)/(1+df)) + 1.
func applyIDF(vec, other []float64) []float64 {
	out := make([]float64, len(vec))
	for i, tf := range vec {
		df := 0
		if vec[i] > 0 {
			df++
		}
		if other[i] > 0 {
			df++
		}
		idf := math.Log(3.0/float64(1+df)) + 1
		out[i] = tf * idf
	}
	return out
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
