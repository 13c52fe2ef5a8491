package scorer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/entity"
)

// fixedComparer reports the same similarity for every pair.
type fixedComparer struct {
	pct   float64
	calls int
}

func (f *fixedComparer) Preprocess(text string) string { return text }
func (f *fixedComparer) Similarity(a, b string) float64 {
	f.calls++
	return f.pct
}

func testPolicy() entity.ThresholdPolicy {
	return entity.ThresholdPolicy{
		AHashMax:                 4,
		DHashMax:                 8,
		WHashHaarMax:             8,
		ColorHashMax:             0,
		TextSimilarityMinPercent: 60,
		TextMinLen:               200,
	}
}

const (
	zeroHash   = "0000000000000000"
	oneBitHash = "0000000000000001"
)

func record(hashes *entity.ImageHashSet, text *entity.ExtractedText) *entity.ComparisonRecord {
	return &entity.ComparisonRecord{ID: uuid.New(), Hashes: hashes, Text: text}
}

func allZeroHashes() *entity.ImageHashSet {
	return &entity.ImageHashSet{AHash: zeroHash, DHash: zeroHash, WHashHaar: zeroHash, ColorHash: zeroHash}
}

func longText(n int) *entity.ExtractedText {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return &entity.ExtractedText{RawText: string(b), Length: n}
}

func TestScoreIdenticalHashesIsDuplicate(t *testing.T) {
	s := New(&fixedComparer{}, nil)
	a := record(allZeroHashes(), nil)
	b := record(allZeroHashes(), nil)

	v := s.Score(a, b, testPolicy())

	assert.True(t, v.IsDuplicate)
	assert.True(t, v.ImageSimilar)
	assert.False(t, v.InsufficientSignal)
	require.Len(t, v.Distances, 4)
	for _, algo := range constants.HashAlgorithms {
		assert.Equal(t, 0, v.Distances[algo], algo)
	}
}

func TestScoreSingleCeilingExceededVetoesImagePath(t *testing.T) {
	s := New(&fixedComparer{}, nil)
	a := record(allZeroHashes(), nil)
	b := record(allZeroHashes(), nil)
	// colorhash distance 1 exceeds its ceiling of 0; everything else matches.
	b.Hashes.ColorHash = oneBitHash

	v := s.Score(a, b, testPolicy())

	assert.False(t, v.ImageSimilar)
	assert.False(t, v.IsDuplicate)
	assert.Equal(t, 1, v.Distances[constants.ColorHash])
}

func TestScoreTextPathFlipsVetoedImageVerdict(t *testing.T) {
	s := New(&fixedComparer{pct: 70}, nil)
	a := record(allZeroHashes(), longText(250))
	b := record(allZeroHashes(), longText(300))
	b.Hashes.ColorHash = oneBitHash

	v := s.Score(a, b, testPolicy())

	assert.False(t, v.ImageSimilar)
	assert.True(t, v.TextSimilar)
	assert.True(t, v.IsDuplicate)
	require.NotNil(t, v.TextSimilarity)
	assert.InDelta(t, 70, *v.TextSimilarity, 1e-9)
}

func TestScoreShortTextNeverContributes(t *testing.T) {
	cmp := &fixedComparer{pct: 100}
	s := New(cmp, nil)
	a := record(nil, longText(199))
	b := record(nil, longText(500))

	v := s.Score(a, b, testPolicy())

	assert.False(t, v.TextSimilar)
	assert.Nil(t, v.TextSimilarity)
	assert.Zero(t, cmp.calls, "comparer must not run for short text")
	assert.True(t, v.InsufficientSignal)
	assert.False(t, v.IsDuplicate)
}

func TestScoreMissingHashExcludesAlgorithm(t *testing.T) {
	s := New(&fixedComparer{}, nil)
	// Only ahash on both sides; colorhash would veto if treated as a pass or
	// compared against the empty value.
	a := record(&entity.ImageHashSet{AHash: zeroHash}, nil)
	b := record(&entity.ImageHashSet{AHash: zeroHash, ColorHash: oneBitHash}, nil)

	v := s.Score(a, b, testPolicy())

	assert.True(t, v.IsDuplicate)
	require.Len(t, v.Distances, 1)
	assert.Contains(t, v.Distances, constants.AHash)
}

func TestScoreUnconfiguredCeilingIsNotApplicable(t *testing.T) {
	s := New(&fixedComparer{}, nil)
	policy := testPolicy()
	policy.ColorHashMax = -1 // disabled

	a := record(allZeroHashes(), nil)
	b := record(allZeroHashes(), nil)
	b.Hashes.ColorHash = "00000000000000ff" // would veto if enabled

	v := s.Score(a, b, policy)

	assert.True(t, v.IsDuplicate)
	assert.NotContains(t, v.Distances, constants.ColorHash)
}

func TestScoreNoSignalAtAll(t *testing.T) {
	s := New(&fixedComparer{pct: 100}, nil)
	v := s.Score(record(nil, nil), record(nil, nil), testPolicy())

	assert.True(t, v.InsufficientSignal)
	assert.False(t, v.IsDuplicate)
	assert.Empty(t, v.Distances)
	assert.Nil(t, v.TextSimilarity)
}

func TestScoreIsDeterministic(t *testing.T) {
	s := New(&fixedComparer{pct: 42}, nil)
	a := record(allZeroHashes(), longText(400))
	b := record(allZeroHashes(), longText(400))
	b.Hashes.DHash = oneBitHash

	v1 := s.Score(a, b, testPolicy())
	v2 := s.Score(a, b, testPolicy())

	v1.DecidedAt = v2.DecidedAt
	assert.Equal(t, v1, v2)
}
