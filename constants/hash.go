package constants

// Perceptual hash algorithm identifiers. Stable values (keys of the
// per-algorithm distance map stored with every verdict).
const (
	AHash     = "ahash"
	DHash     = "dhash"
	WHashHaar = "whash_haar"
	ColorHash = "colorhash"
)

// HashAlgorithms lists all algorithms in canonical order.
var HashAlgorithms = []string{AHash, DHash, WHashHaar, ColorHash}
