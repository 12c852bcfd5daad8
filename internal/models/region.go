package models

// Region is a rectangular sub-extent of a volume's index space. Regions
// are the unit of parallel work.
type Region struct {
	// Index is the first voxel of the region
	Index [3]int

	// Size is the extent of the region along each axis
	Size [3]int
}

// NumVoxels returns the number of voxels inside the region.
func (r Region) NumVoxels() int {
	return r.Size[0] * r.Size[1] * r.Size[2]
}
