package models

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyVolume is returned for a geometry with a zero or negative extent.
	ErrEmptyVolume = errors.New("volume has no samples")

	// ErrDataLength is returned when a sample buffer does not match the extent.
	ErrDataLength = errors.New("sample buffer length does not match extent")

	// ErrAllocation is returned when a volume buffer cannot be allocated.
	ErrAllocation = errors.New("cannot allocate volume")
)

// Geometry describes the index space of a volume and how it maps to
// physical space.
type Geometry struct {
	// Size is the extent of the volume along x, y and z in voxels
	Size [3]int

	// Spacing is the physical size of each voxel in mm
	Spacing [3]float64

	// Origin is the physical coordinate of voxel (0,0,0)
	Origin [3]float64

	// Direction maps index axis j (column) onto physical axis i (row)
	Direction [3][3]float64
}

// IdentityDirection returns the 3x3 identity orientation.
func IdentityDirection() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// NewGeometry returns a geometry of the given size with unit spacing,
// zero origin and identity orientation.
func NewGeometry(x, y, z int) Geometry {
	return Geometry{
		Size:      [3]int{x, y, z},
		Spacing:   [3]float64{1, 1, 1},
		Direction: IdentityDirection(),
	}
}

// NumVoxels returns the number of samples in the volume.
func (g Geometry) NumVoxels() int {
	return g.Size[0] * g.Size[1] * g.Size[2]
}

// Validate checks that every axis has at least one sample.
func (g Geometry) Validate() error {
	for axis, n := range g.Size {
		if n < 1 {
			return fmt.Errorf("%w: size[%d] = %d", ErrEmptyVolume, axis, n)
		}
	}
	return nil
}

// SameSize reports whether both geometries share the same extent.
func (g Geometry) SameSize(o Geometry) bool {
	return g.Size == o.Size
}

// Compatible reports whether extent, spacing, origin and orientation all
// match exactly, so that voxels correspond index for index and in space.
func (g Geometry) Compatible(o Geometry) bool {
	return g.Size == o.Size &&
		g.Spacing == o.Spacing &&
		g.Origin == o.Origin &&
		g.Direction == o.Direction
}

// Index returns the linear offset of voxel (x, y, z). x varies fastest.
func (g Geometry) Index(x, y, z int) int {
	return (z*g.Size[1]+y)*g.Size[0] + x
}

// LargestRegion returns the region covering the whole extent.
func (g Geometry) LargestRegion() Region {
	return Region{Size: g.Size}
}

// Volume is a scalar 3D image stored as a flat array in x-fastest order.
type Volume struct {
	Geometry

	// Data holds NumVoxels samples
	Data []float64
}

// MaskVolume is a label image used to restrict processing. A zero sample
// excludes the voxel, any other value includes it.
type MaskVolume struct {
	Geometry

	Data []uint32
}

// NewVolume allocates a zero-filled volume with geometry g.
func NewVolume(g Geometry) (*Volume, error) {
	n, err := voxelCount(g, 8)
	if err != nil {
		return nil, err
	}
	data, err := allocate[float64](n)
	if err != nil {
		return nil, err
	}
	return &Volume{Geometry: g, Data: data}, nil
}

// NewMaskVolume allocates an all-excluded mask with geometry g.
func NewMaskVolume(g Geometry) (*MaskVolume, error) {
	n, err := voxelCount(g, 4)
	if err != nil {
		return nil, err
	}
	data, err := allocate[uint32](n)
	if err != nil {
		return nil, err
	}
	return &MaskVolume{Geometry: g, Data: data}, nil
}

// Validate checks the geometry and the sample buffer length.
func (v *Volume) Validate() error {
	if err := v.Geometry.Validate(); err != nil {
		return err
	}
	if len(v.Data) != v.NumVoxels() {
		return fmt.Errorf("%w: have %d samples, extent %v needs %d",
			ErrDataLength, len(v.Data), v.Size, v.NumVoxels())
	}
	return nil
}

// Validate checks the geometry and the sample buffer length.
func (m *MaskVolume) Validate() error {
	if err := m.Geometry.Validate(); err != nil {
		return err
	}
	if len(m.Data) != m.NumVoxels() {
		return fmt.Errorf("%w: have %d mask samples, extent %v needs %d",
			ErrDataLength, len(m.Data), m.Size, m.NumVoxels())
	}
	return nil
}

// voxelCount returns the number of voxels of g, refusing extents whose
// buffer size in bytes would overflow.
func voxelCount(g Geometry, sampleSize int) (int, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	limit := math.MaxInt / sampleSize
	n := 1
	for _, s := range g.Size {
		if n > limit/s {
			return 0, fmt.Errorf("%w: extent %v is too large", ErrAllocation, g.Size)
		}
		n *= s
	}
	return n, nil
}

func allocate[T float64 | uint32](n int) (data []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w: %d samples: %v", ErrAllocation, n, r)
		}
	}()
	return make([]T, n), nil
}
