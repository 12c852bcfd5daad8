package transform

import "doublelogpvalue/internal/models"

// SplitRegions divides region into at most n disjoint slabs along its
// slowest axis that has more than one voxel. Every slab spans
// ceil(size/n) rows except possibly the last. The slabs cover region
// exactly. n < 1 is treated as 1.
func SplitRegions(region models.Region, n int) []models.Region {
	if n < 1 {
		n = 1
	}

	axis := len(region.Size) - 1
	for axis > 0 && region.Size[axis] == 1 {
		axis--
	}

	extent := region.Size[axis]
	if extent <= 1 || n == 1 {
		return []models.Region{region}
	}

	perPiece := (extent + n - 1) / n
	pieces := (extent + perPiece - 1) / perPiece

	regions := make([]models.Region, 0, pieces)
	for i := 0; i < pieces; i++ {
		r := region
		r.Index[axis] = region.Index[axis] + i*perPiece
		r.Size[axis] = min(perPiece, extent-i*perPiece)
		regions = append(regions, r)
	}
	return regions
}
