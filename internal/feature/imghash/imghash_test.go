package imghash

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkozlov/imgmatch/internal/feature"
)

func gradientImage(w, h int, seed uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*8) + seed,
				G: uint8(y * 8),
				B: uint8((x + y) * 4),
				A: 255,
			})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestHashImageDeterministic(t *testing.T) {
	img := gradientImage(64, 64, 0)
	h1 := HashImage(img)
	h2 := HashImage(img)
	assert.Equal(t, h1, h2)

	for _, h := range []string{h1.AHash, h1.DHash, h1.WHashHaar, h1.ColorHash} {
		assert.Len(t, h, 16)
	}
}

func TestHashImageIdenticalImagesZeroDistance(t *testing.T) {
	a := HashImage(gradientImage(64, 64, 0))
	b := HashImage(gradientImage(64, 64, 0))

	for _, pair := range [][2]string{
		{a.AHash, b.AHash},
		{a.DHash, b.DHash},
		{a.WHashHaar, b.WHashHaar},
		{a.ColorHash, b.ColorHash},
	} {
		d, err := Distance(pair[0], pair[1])
		require.NoError(t, err)
		assert.Zero(t, d)
	}
}

func TestDistance(t *testing.T) {
	d, err := Distance("0000000000000000", "0000000000000000")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = Distance("0000000000000000", "ffffffffffffffff")
	require.NoError(t, err)
	assert.Equal(t, 64, d)

	d, err = Distance("0000000000000000", "0000000000000003")
	require.NoError(t, err)
	assert.Equal(t, 2, d)

	_, err = Distance("00", "0000")
	assert.Error(t, err)

	_, err = Distance("zz", "00")
	assert.Error(t, err)
}

func TestComputeHashes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	writePNG(t, path, gradientImage(32, 32, 0))

	h := NewHasher(nil)
	set, contentHash, err := h.ComputeHashes(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Len(t, contentHash, 32)

	// Same bytes, same content hash; different content, different hash.
	_, again, err := h.ComputeHashes(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, contentHash, again)

	other := filepath.Join(dir, "other.png")
	writePNG(t, other, gradientImage(32, 32, 40))
	_, otherHash, err := h.ComputeHashes(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, contentHash, otherHash)
}

func TestComputeHashesNotApplicable(t *testing.T) {
	h := NewHasher(nil)

	_, _, err := h.ComputeHashes(context.Background(), "/does/not/exist.png")
	assert.ErrorIs(t, err, feature.ErrNotApplicable)

	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))
	_, _, err = h.ComputeHashes(context.Background(), txt)
	assert.ErrorIs(t, err, feature.ErrNotApplicable)

	garbage := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not a png"), 0o644))
	_, _, err = h.ComputeHashes(context.Background(), garbage)
	assert.ErrorIs(t, err, feature.ErrNotApplicable)
}
