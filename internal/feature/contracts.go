// Package feature defines the capability contracts the pipeline consumes:
// OCR text extraction, perceptual image hashing, and text similarity.
// Providers live in subpackages; tests substitute fakes.
package feature

import (
	"context"
	"errors"

	"github.com/antonkozlov/imgmatch/internal/entity"
)

// ErrNotApplicable signals that a capability cannot produce a signal for the
// given resource (wrong modality, empty result). It is not a failure: the
// orchestrator treats the signal as absent.
var ErrNotApplicable = errors.New("feature not applicable to resource")

// TextExtractor produces OCR text for an image resource.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (*entity.ExtractedText, error)
}

// ImageHasher produces the perceptual hash set and content hash for a resource.
type ImageHasher interface {
	ComputeHashes(ctx context.Context, path string) (*entity.ImageHashSet, string, error)
}

// TextComparer normalizes text and scores pairs as a similarity percentage.
type TextComparer interface {
	Preprocess(text string) string
	Similarity(a, b string) float64
}
