package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/antonkozlov/imgmatch/constants"
)

// ExtractedText holds OCR output for a resource. Length is measured on the
// text used for comparison (normalized when preprocessing is enabled).
// Text shorter than the policy minimum is stored but never scored.
type ExtractedText struct {
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text,omitempty"`
	Length         int    `json:"length"`
}

// ComparisonText returns the variant of the text used for scoring.
func (t *ExtractedText) ComparisonText() string {
	if t.NormalizedText != "" {
		return t.NormalizedText
	}
	return t.RawText
}

// ImageHashSet holds the four perceptual hashes of a resource, hex encoded.
// Computed once per resource; a maintenance rescan may overwrite stale sets.
type ImageHashSet struct {
	AHash     string `json:"ahash"`
	DHash     string `json:"dhash"`
	WHashHaar string `json:"whash_haar"`
	ColorHash string `json:"colorhash"`
}

// Get returns the hash value for an algorithm id from constants.HashAlgorithms.
func (h *ImageHashSet) Get(algorithm string) string {
	switch algorithm {
	case constants.AHash:
		return h.AHash
	case constants.DHash:
		return h.DHash
	case constants.WHashHaar:
		return h.WHashHaar
	case constants.ColorHash:
		return h.ColorHash
	default:
		return ""
	}
}

// ComparisonRecord is the unit of persistence: one processed resource with
// whatever signals it produced. Append-only after creation.
type ComparisonRecord struct {
	ID          uuid.UUID      `json:"id"`
	ImageID     string         `json:"image_id,omitempty"`
	ImagePath   string         `json:"image_path"`
	ContentHash string         `json:"content_hash,omitempty"`
	Text        *ExtractedText `json:"text,omitempty"`
	Hashes      *ImageHashSet  `json:"hashes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
