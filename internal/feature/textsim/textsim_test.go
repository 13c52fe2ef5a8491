package textsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarityIdenticalTexts(t *testing.T) {
	c := NewComparer(false)
	got := c.Similarity("total 42 eur paid by card", "total 42 eur paid by card")
	assert.InDelta(t, 100, got, 1e-6)
}

func TestSimilarityDisjointTexts(t *testing.T) {
	c := NewComparer(false)
	got := c.Similarity("alpha bravo charlie", "delta echo foxtrot")
	assert.InDelta(t, 0, got, 1e-6)
}

func TestSimilarityEmptyAndShortTokens(t *testing.T) {
	c := NewComparer(false)
	assert.Zero(t, c.Similarity("", "anything at all"))
	assert.Zero(t, c.Similarity("a b c", "a b c"), "single-char tokens are discarded")
}

func TestSimilarityIsSymmetric(t *testing.T) {
	c := NewComparer(false)
	a := "the quick brown fox jumps over the lazy dog"
	b := "the quick brown cat sleeps under the lazy dog"
	assert.InDelta(t, c.Similarity(a, b), c.Similarity(b, a), 1e-9)
}

func TestSimilarityPartialOverlapBetweenExtremes(t *testing.T) {
	c := NewComparer(false)
	got := c.Similarity("invoice number 1234 total", "invoice number 9999 amount")
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 100.0)
}

func TestPreprocessDisabledPassesThrough(t *testing.T) {
	c := NewComparer(false)
	assert.Equal(t, "He!!o, W0rld", c.Preprocess("He!!o, W0rld"))
}

func TestPreprocessFoldsConfusables(t *testing.T) {
	c := NewComparer(true)
	// T->7, O->0 via the uppercase table.
	assert.Equal(t, "70", c.Preprocess("TO"))
	// punctuation stripped before folding
	assert.Equal(t, "70", c.Preprocess("T.O!"))
	// lowercase table: s->5, y->7 (after the uppercase pass folds S and Y).
	assert.Equal(t, c.Preprocess("sy"), c.Preprocess("SY"))
}

func TestPreprocessMakesConfusedScansAgree(t *testing.T) {
	c := NewComparer(true)
	assert.Equal(t, c.Preprocess("INVOICE 100"), c.Preprocess("INV0ICE 1OO"))
}
