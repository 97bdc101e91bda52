package volume

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// EstimateContrast returns a display contrast pair [low, high] from the
// chunk's intensity distribution, taking the lowQ and highQ quantiles
// (e.g. 0.01 and 0.99). The pair is display-only and never feeds back into
// the annotation data model.
func EstimateContrast(c *Chunk, lowQ, highQ float64) [2]float64 {
	if c == nil || len(c.Data) == 0 {
		return [2]float64{0, 0}
	}
	if lowQ < 0 {
		lowQ = 0
	}
	if highQ > 1 {
		highQ = 1
	}
	if highQ < lowQ {
		lowQ, highQ = highQ, lowQ
	}

	sorted := append([]float64(nil), c.Data...)
	sort.Float64s(sorted)
	low := stat.Quantile(lowQ, stat.Empirical, sorted, nil)
	high := stat.Quantile(highQ, stat.Empirical, sorted, nil)
	return [2]float64{low, high}
}
