package imghash

import (
	"encoding/hex"
	"image"
	"image/color"
	"sort"

	"golang.org/x/image/draw"
)

// grayPixels scales the image to w x h and returns row-major grayscale values.
func grayPixels(img image.Image, w, h int) []float64 {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	px := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px[y*w+x] = float64(dst.GrayAt(x, y).Y)
		}
	}
	return px
}

// averageHash thresholds an 8x8 grayscale reduction against its mean.
func averageHash(img image.Image) uint64 {
	px := grayPixels(img, 8, 8)
	var mean float64
	for _, v := range px {
		mean += v
	}
	mean /= float64(len(px))

	var bits uint64
	for i, v := range px {
		if v > mean {
			bits |= 1 << (63 - i)
		}
	}
	return bits
}

// differenceHash compares horizontally adjacent pixels of a 9x8 reduction.
func differenceHash(img image.Image) uint64 {
	px := grayPixels(img, 9, 8)
	var bits uint64
	i := 0
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if px[y*9+x+1] > px[y*9+x] {
				bits |= 1 << (63 - i)
			}
			i++
		}
	}
	return bits
}

// waveletHash runs a full 2D Haar decomposition of an 8x8 grayscale
// reduction, discards the DC coefficient, and thresholds the remaining
// coefficients against their median.
func waveletHash(img image.Image) uint64 {
	const n = 8
	px := grayPixels(img, n, n)
	for i := range px {
		px[i] /= 255
	}

	// Rows then columns, halving each level down to a single LL coefficient.
	for size := n; size > 1; size /= 2 {
		for y := 0; y < size; y++ {
			haarStep(px, y*n, 1, size)
		}
		for x := 0; x < size; x++ {
			haarStep(px, x, n, size)
		}
	}
	px[0] = 0 // drop DC so overall brightness does not dominate

	sorted := append([]float64(nil), px...)
	sort.Float64s(sorted)
	median := (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2

	var bits uint64
	for i, v := range px {
		if v > median {
			bits |= 1 << (63 - i)
		}
	}
	return bits
}

// haarStep performs one level of the Haar transform over size elements
// starting at off with the given stride, in place.
func haarStep(px []float64, off, stride, size int) {
	half := size / 2
	tmp := make([]float64, size)
	for i := 0; i < half; i++ {
		a := px[off+(2*i)*stride]
		b := px[off+(2*i+1)*stride]
		tmp[i] = (a + b) / 2
		tmp[half+i] = (a - b) / 2
	}
	for i := 0; i < size; i++ {
		px[off+i*stride] = tmp[i]
	}
}

// colorHash buckets pixels of a 16x16 reduction into a 4x4x4 RGB histogram
// and thresholds each bin against the mean occupancy. Insensitive to layout,
// sensitive to palette, which is what the color signal is for.
func colorHash(img image.Image) uint64 {
	dst := image.NewRGBA(image.Rect(0, 0, 16, 16))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var bins [64]int
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			c := color.RGBAModel.Convert(dst.At(x, y)).(color.RGBA)
			bin := int(c.R>>6)<<4 | int(c.G>>6)<<2 | int(c.B>>6)
			bins[bin]++
		}
	}
	mean := 256.0 / 64.0

	var bits uint64
	for i, n := range bins {
		if float64(n) > mean {
			bits |= 1 << (63 - i)
		}
	}
	return bits
}

func encodeBits(bits uint64) string {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (56 - 8*i))
	}
	return hex.EncodeToString(buf)
}
