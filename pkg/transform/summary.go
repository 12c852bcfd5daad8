package transform

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"doublelogpvalue/internal/models"
)

// Summary describes the values of a transformed volume.
type Summary struct {
	// Voxels is the total number of output voxels
	Voxels int

	// Masked counts voxels excluded by the mask (written as 0)
	Masked int

	// Finite, NaN, PosInf and NegInf classify the included voxels
	Finite int
	NaN    int
	PosInf int
	NegInf int

	// Min, Max, Mean and StdDev are taken over the finite included
	// voxels. They are NaN when there are none.
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Summarize classifies the voxels of out. mask may be nil; when set it
// must have the extent of out.
func Summarize(out *models.Volume, mask *models.MaskVolume) Summary {
	s := Summary{Voxels: len(out.Data)}

	finite := make([]float64, 0, len(out.Data))
	for k, v := range out.Data {
		if mask != nil && mask.Data[k] == 0 {
			s.Masked++
			continue
		}
		switch {
		case math.IsNaN(v):
			s.NaN++
		case math.IsInf(v, 1):
			s.PosInf++
		case math.IsInf(v, -1):
			s.NegInf++
		default:
			finite = append(finite, v)
		}
	}
	s.Finite = len(finite)

	if len(finite) == 0 {
		s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}

	s.Min = floats.Min(finite)
	s.Max = floats.Max(finite)
	if len(finite) == 1 {
		s.Mean, s.StdDev = finite[0], 0
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(finite, nil)
	return s
}
