// Package transform implements the masked, parallel double-log transform
// of a scalar volume.
//
// Every voxel x of the input becomes ln(-ln(x)). When a mask is supplied,
// voxels whose mask value is zero are written as 0 and the transform is
// not evaluated for them. Out-of-domain inputs are not validated: the
// IEEE results (NaN, +Inf, -Inf) are propagated as they are.
package transform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"doublelogpvalue/internal/logging"
	"doublelogpvalue/internal/models"
)

var (
	// ErrWorkerCount is returned when fewer than one worker is requested.
	ErrWorkerCount = errors.New("number of workers must be at least 1")

	// ErrMaskGeometry is returned when the mask extent differs from the input.
	ErrMaskGeometry = errors.New("mask extent does not match input extent")
)

// Counter receives the number of voxels that went through the transform.
// prometheus.Counter satisfies it.
type Counter interface {
	Add(float64)
}

// Params configures an Engine.
type Params struct {
	// NumWorkers bounds how many regions are processed at the same time.
	// It must be at least 1.
	NumWorkers int

	// RegionsPerWorker asks for a finer split of the index space. The
	// volume is split into up to NumWorkers*RegionsPerWorker regions.
	// Zero means 1.
	RegionsPerWorker int

	// Progress, when set, is incremented once with the number of
	// non-masked voxels after every region has finished. Failed or
	// cancelled runs add nothing.
	Progress Counter

	// Logger receives debug output. Nil disables logging.
	Logger *logging.Logger
}

// Engine runs the double-log transform. It keeps no state between calls
// and is safe for concurrent use.
type Engine struct {
	params Params
	logger *logging.Logger
}

// NewEngine creates an engine from params.
func NewEngine(params *Params) *Engine {
	e := &Engine{params: *params, logger: params.Logger}
	if e.logger == nil {
		e.logger = logging.Nop()
	}
	if e.params.RegionsPerWorker < 1 {
		e.params.RegionsPerWorker = 1
	}
	return e
}

// Transform is a shortcut for NewEngine(&Params{NumWorkers: numWorkers}).Transform.
func Transform(ctx context.Context, input *models.Volume, mask *models.MaskVolume, numWorkers int) (*models.Volume, error) {
	return NewEngine(&Params{NumWorkers: numWorkers}).Transform(ctx, input, mask)
}

// DoubleLog returns ln(-ln(x)).
func DoubleLog(x float64) float64 {
	return math.Log(-math.Log(x))
}

// Transform returns a new volume with the geometry of input where each
// voxel holds the double-log of the input voxel, or 0 where mask is zero.
// A nil mask disables masking.
//
// All preconditions are checked before the output is allocated. On error,
// including cancellation of ctx, no volume is returned.
func (e *Engine) Transform(ctx context.Context, input *models.Volume, mask *models.MaskVolume) (*models.Volume, error) {
	if err := e.validate(input, mask); err != nil {
		return nil, err
	}

	output, err := models.NewVolume(input.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate output: %w", err)
	}

	var maskData []uint32
	if mask != nil {
		maskData = mask.Data
	}

	regions := SplitRegions(input.LargestRegion(), e.regionCount(input.Geometry))
	e.logger.Debug("transform", "dispatching regions", logging.Fields{
		"regions": len(regions),
		"workers": e.params.NumWorkers,
		"masked":  mask != nil,
		"size":    input.Size,
	})

	// one slot per region, summed after the join
	processed := make([]int, len(regions))

	start := time.Now()
	if len(regions) == 1 {
		n, err := e.processRegion(ctx, regions[0], input, maskData, output)
		if err != nil {
			return nil, err
		}
		processed[0] = n
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.params.NumWorkers)
		for i, region := range regions {
			i, region := i, region
			g.Go(func() error {
				n, err := e.processRegion(gctx, region, input, maskData, output)
				processed[i] = n
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if e.params.Progress != nil {
		total := 0
		for _, n := range processed {
			total += n
		}
		if total > 0 {
			e.params.Progress.Add(float64(total))
		}
	}

	e.logger.Debug("transform", "all regions complete", logging.Fields{
		"elapsed": time.Since(start).String(),
	})
	return output, nil
}

// NumRegions returns how many regions a volume of geometry g is split into.
func (e *Engine) NumRegions(g models.Geometry) int {
	return len(SplitRegions(g.LargestRegion(), e.regionCount(g)))
}

// regionCount is NumWorkers*RegionsPerWorker capped at the voxel count of
// g, so large settings cannot overflow into a single region.
func (e *Engine) regionCount(g models.Geometry) int {
	limit := max(g.NumVoxels(), 1)
	workers := max(e.params.NumWorkers, 1)
	if workers >= limit || e.params.RegionsPerWorker > limit/workers {
		return limit
	}
	return workers * e.params.RegionsPerWorker
}

func (e *Engine) validate(input *models.Volume, mask *models.MaskVolume) error {
	if e.params.NumWorkers < 1 {
		return fmt.Errorf("%w: got %d", ErrWorkerCount, e.params.NumWorkers)
	}
	if input == nil {
		return fmt.Errorf("invalid input volume: %w", models.ErrEmptyVolume)
	}
	if err := input.Validate(); err != nil {
		return fmt.Errorf("invalid input volume: %w", err)
	}
	if mask == nil {
		return nil
	}
	if !mask.SameSize(input.Geometry) {
		return fmt.Errorf("%w: mask %v, input %v", ErrMaskGeometry, mask.Size, input.Size)
	}
	if err := mask.Validate(); err != nil {
		return fmt.Errorf("invalid mask volume: %w", err)
	}
	return nil
}

// processRegion writes every voxel of region into out and returns how many
// went through the transform. Rows along x are contiguous in memory; ctx
// is checked once per row.
func (e *Engine) processRegion(ctx context.Context, region models.Region, in *models.Volume, mask []uint32, out *models.Volume) (int, error) {
	src, dst := in.Data, out.Data
	processed := 0

	for z := region.Index[2]; z < region.Index[2]+region.Size[2]; z++ {
		for y := region.Index[1]; y < region.Index[1]+region.Size[1]; y++ {
			if err := ctx.Err(); err != nil {
				return processed, err
			}

			begin := in.Index(region.Index[0], y, z)
			end := begin + region.Size[0]

			if mask == nil {
				for k := begin; k < end; k++ {
					dst[k] = DoubleLog(src[k])
				}
				processed += end - begin
				continue
			}

			for k := begin; k < end; k++ {
				if mask[k] == 0 {
					dst[k] = 0
					continue
				}
				dst[k] = DoubleLog(src[k])
				processed++
			}
		}
	}

	return processed, nil
}
