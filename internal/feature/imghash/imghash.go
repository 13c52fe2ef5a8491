// Package imghash implements the ImageHasher capability: four perceptual
// hashes (ahash, dhash, whash-haar, colorhash) plus a content hash used for
// exact-duplicate detection. All perceptual hashes are 64-bit, hex encoded,
// and compared by Hamming distance.
package imghash

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/entity"
	"github.com/antonkozlov/imgmatch/internal/feature"
)

// Hasher computes perceptual and content hashes for image files.
type Hasher struct {
	logger *slog.Logger
}

func NewHasher(logger *slog.Logger) *Hasher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hasher{logger: logger}
}

// ComputeHashes opens the image at path and derives the full hash set and the
// content hash. Returns feature.ErrNotApplicable when the file is missing,
// has a disallowed extension, or cannot be decoded as an image.
func (h *Hasher) ComputeHashes(ctx context.Context, path string) (*entity.ImageHashSet, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if !constants.IsAllowedImage(path) {
		h.logger.Debug("hashing skipped: extension not allowed", "path", path)
		return nil, "", feature.ErrNotApplicable
	}

	contentHash, err := ContentHash(path)
	if err != nil {
		if os.IsNotExist(err) {
			h.logger.Warn("hashing skipped: file missing", "path", path)
			return nil, "", feature.ErrNotApplicable
		}
		return nil, "", fmt.Errorf("content hash %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		h.logger.Warn("hashing skipped: undecodable image", "path", path, "err", err)
		return nil, "", feature.ErrNotApplicable
	}

	set := HashImage(img)
	h.logger.Debug("computed image hashes", "path", path, "content_hash", contentHash)
	return set, contentHash, nil
}

// HashImage derives all four perceptual hashes from a decoded image.
func HashImage(img image.Image) *entity.ImageHashSet {
	return &entity.ImageHashSet{
		AHash:     encodeBits(averageHash(img)),
		DHash:     encodeBits(differenceHash(img)),
		WHashHaar: encodeBits(waveletHash(img)),
		ColorHash: encodeBits(colorHash(img)),
	}
}
