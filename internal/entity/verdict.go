package entity

import (
	"time"

	"github.com/google/uuid"
)

// SimilarityVerdict is the scorer's output for one record pair. Derived data:
// recomputed whenever its inputs change, never edited in place.
type SimilarityVerdict struct {
	ResourceA          uuid.UUID      `json:"resource_a"`
	ResourceB          uuid.UUID      `json:"resource_b"`
	Distances          map[string]int `json:"per_algorithm_distances,omitempty"`
	TextSimilarity     *float64       `json:"text_similarity_score,omitempty"`
	ImageSimilar       bool           `json:"image_similar"`
	TextSimilar        bool           `json:"text_similar"`
	IsDuplicate        bool           `json:"is_duplicate"`
	InsufficientSignal bool           `json:"insufficient_signal"`
	DecidedAt          time.Time      `json:"decided_at"`
}

// SimilarityPercent returns the strongest available similarity figure for
// reporting: the text score when present, else 100 for image matches.
func (v *SimilarityVerdict) SimilarityPercent() float64 {
	if v.TextSimilarity != nil {
		return *v.TextSimilarity
	}
	if v.ImageSimilar {
		return 100
	}
	return 0
}
