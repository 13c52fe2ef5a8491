package entity

import "github.com/antonkozlov/imgmatch/constants"

// ThresholdPolicy is the process-wide similarity policy, loaded once at
// startup and read-only thereafter. Hash ceilings are maximum Hamming
// distances (lower distance = more similar); a negative ceiling means the
// algorithm is not configured and takes no part in the image verdict.
type ThresholdPolicy struct {
	AHashMax                 int
	DHashMax                 int
	WHashHaarMax             int
	ColorHashMax             int
	TextSimilarityMinPercent float64
	TextMinLen               int
	PreprocessEnabled        bool
}

// Ceiling returns the configured ceiling for an algorithm id and whether the
// algorithm is enabled at all.
func (p ThresholdPolicy) Ceiling(algorithm string) (int, bool) {
	var c int
	switch algorithm {
	case constants.AHash:
		c = p.AHashMax
	case constants.DHash:
		c = p.DHashMax
	case constants.WHashHaar:
		c = p.WHashHaarMax
	case constants.ColorHash:
		c = p.ColorHashMax
	default:
		return 0, false
	}
	return c, c >= 0
}
