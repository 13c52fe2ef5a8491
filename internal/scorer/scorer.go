// Package scorer decides whether two comparison records are near-duplicates.
// Scoring is a pure function of the two records and the threshold policy.
package scorer

import (
	"log/slog"
	"time"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/entity"
	"github.com/antonkozlov/imgmatch/internal/feature"
	"github.com/antonkozlov/imgmatch/internal/feature/imghash"
)

// Scorer combines the four hash distances and the text similarity score into
// a single verdict.
type Scorer struct {
	text   feature.TextComparer
	logger *slog.Logger
}

func New(text feature.TextComparer, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{text: text, logger: logger}
}

// Score evaluates a against b under policy.
//
// Image path: every configured algorithm present on both sides must report a
// distance at or below its ceiling; one algorithm above its ceiling vetoes
// the image match. Algorithms missing on either side are not applicable and
// drop out of the conjunction. Text path: applicable only when both sides
// carry at least TextMinLen of comparable text; similar when the score meets
// TextSimilarityMinPercent. Either applicable path deciding "similar" makes
// the pair a duplicate. If neither path is applicable the verdict is
// not-duplicate with InsufficientSignal set.
func (s *Scorer) Score(a, b *entity.ComparisonRecord, policy entity.ThresholdPolicy) entity.SimilarityVerdict {
	verdict := entity.SimilarityVerdict{
		ResourceA: a.ID,
		ResourceB: b.ID,
		DecidedAt: time.Now().UTC(),
	}

	imageApplicable := false
	imageSimilar := true
	if a.Hashes != nil && b.Hashes != nil {
		for _, algo := range constants.HashAlgorithms {
			ceiling, enabled := policy.Ceiling(algo)
			if !enabled {
				continue
			}
			ha, hb := a.Hashes.Get(algo), b.Hashes.Get(algo)
			if ha == "" || hb == "" {
				continue
			}
			d, err := imghash.Distance(ha, hb)
			if err != nil {
				s.logger.Warn("hash distance failed, algorithm skipped",
					"algorithm", algo, "resource_a", a.ID, "resource_b", b.ID, "err", err)
				continue
			}
			if verdict.Distances == nil {
				verdict.Distances = make(map[string]int, len(constants.HashAlgorithms))
			}
			verdict.Distances[algo] = d
			imageApplicable = true
			if d > ceiling {
				imageSimilar = false
			}
		}
	}
	verdict.ImageSimilar = imageApplicable && imageSimilar

	textApplicable := textUsable(a.Text, policy.TextMinLen) && textUsable(b.Text, policy.TextMinLen)
	if textApplicable {
		pct := s.text.Similarity(a.Text.ComparisonText(), b.Text.ComparisonText())
		verdict.TextSimilarity = &pct
		verdict.TextSimilar = pct >= policy.TextSimilarityMinPercent
	}

	if !imageApplicable && !textApplicable {
		verdict.InsufficientSignal = true
		return verdict
	}
	verdict.IsDuplicate = verdict.ImageSimilar || verdict.TextSimilar
	return verdict
}

func textUsable(t *entity.ExtractedText, minLen int) bool {
	return t != nil && t.Length >= minLen
}
