package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doublelogpvalue/internal/models"
)

// coverage counts how many regions contain each voxel of g.
func coverage(g models.Geometry, regions []models.Region) []int {
	counts := make([]int, g.NumVoxels())
	for _, r := range regions {
		for z := r.Index[2]; z < r.Index[2]+r.Size[2]; z++ {
			for y := r.Index[1]; y < r.Index[1]+r.Size[1]; y++ {
				for x := r.Index[0]; x < r.Index[0]+r.Size[0]; x++ {
					counts[g.Index(x, y, z)]++
				}
			}
		}
	}
	return counts
}

func TestSplitRegionsPartitionsVolume(t *testing.T) {
	sizes := [][3]int{{10, 10, 10}, {7, 3, 1}, {3, 1, 1}, {1, 1, 1}, {5, 9, 2}, {1, 1, 13}}
	for _, size := range sizes {
		g := models.NewGeometry(size[0], size[1], size[2])
		for n := 1; n <= 16; n++ {
			regions := SplitRegions(g.LargestRegion(), n)
			require.NotEmpty(t, regions)
			assert.LessOrEqual(t, len(regions), n, "size %v n %d", size, n)

			for k, c := range coverage(g, regions) {
				if c != 1 {
					t.Fatalf("size %v n %d: voxel %d covered %d times", size, n, k, c)
				}
			}
		}
	}
}

func TestSplitRegionsSlowestAxis(t *testing.T) {
	regions := SplitRegions(models.NewGeometry(4, 4, 10).LargestRegion(), 3)
	require.Len(t, regions, 3)
	assert.Equal(t, models.Region{Index: [3]int{0, 0, 0}, Size: [3]int{4, 4, 4}}, regions[0])
	assert.Equal(t, models.Region{Index: [3]int{0, 0, 4}, Size: [3]int{4, 4, 4}}, regions[1])
	assert.Equal(t, models.Region{Index: [3]int{0, 0, 8}, Size: [3]int{4, 4, 2}}, regions[2])

	// z has a single slice, so y is split
	regions = SplitRegions(models.NewGeometry(4, 6, 1).LargestRegion(), 2)
	require.Len(t, regions, 2)
	assert.Equal(t, [3]int{0, 3, 0}, regions[1].Index)
	assert.Equal(t, [3]int{4, 3, 1}, regions[1].Size)
}

func TestSplitRegionsOffsetRegion(t *testing.T) {
	parent := models.Region{Index: [3]int{2, 3, 5}, Size: [3]int{2, 2, 4}}
	regions := SplitRegions(parent, 2)
	require.Len(t, regions, 2)
	assert.Equal(t, [3]int{2, 3, 5}, regions[0].Index)
	assert.Equal(t, [3]int{2, 3, 7}, regions[1].Index)
	assert.Equal(t, 2, regions[1].Size[2])
}

func TestSplitRegionsNonPositive(t *testing.T) {
	r := models.NewGeometry(3, 3, 3).LargestRegion()
	assert.Equal(t, []models.Region{r}, SplitRegions(r, 0))
}
