package visualization

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	"doublelogpvalue/internal/models"
)

const jpegQuality = 90

// Viewer renders orthogonal slices of a volume as 16-bit grayscale images.
// Intensities are windowed linearly onto the finite range of the volume;
// NaN and infinite voxels render black.
type Viewer struct {
	volume *models.Volume

	// window bounds taken from the finite samples
	low  float64
	high float64
}

// NewViewer creates a viewer for vol.
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{volume: vol, low: math.Inf(1), high: math.Inf(-1)}
	for _, s := range vol.Data {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		v.low = math.Min(v.low, s)
		v.high = math.Max(v.high, s)
	}
	return v
}

// Window returns the intensity range mapped onto black..white.
func (v *Viewer) Window() (low, high float64) {
	return v.low, v.high
}

// gray maps a sample to a 16-bit gray level.
func (v *Viewer) gray(s float64) color.Gray16 {
	if math.IsNaN(s) || math.IsInf(s, 0) || v.high < v.low {
		return color.Gray16{}
	}
	if v.high == v.low {
		return color.Gray16{Y: 65535}
	}
	t := (s - v.low) / (v.high - v.low)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t*65535)))}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	dim, err := axisDim(axis)
	if err != nil {
		return nil, err
	}
	if position >= v.volume.Size[dim] {
		return nil, fmt.Errorf("position %d exceeds %s extent %d", position, strings.ToLower(axis), v.volume.Size[dim])
	}

	width, height, depth := v.volume.Size[0], v.volume.Size[1], v.volume.Size[2]
	data := v.volume.Data
	var img *image.Gray16

	switch dim {
	case 0:
		// YZ plane
		img = image.NewGray16(image.Rect(0, 0, depth, height))
		for y := 0; y < height; y++ {
			for z := 0; z < depth; z++ {
				img.SetGray16(z, y, v.gray(data[v.volume.Index(position, y, z)]))
			}
		}

	case 1:
		// XZ plane
		img = image.NewGray16(image.Rect(0, 0, width, depth))
		for z := 0; z < depth; z++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, z, v.gray(data[v.volume.Index(x, position, z)]))
			}
		}

	default:
		// XY plane
		img = image.NewGray16(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, v.gray(data[v.volume.Index(x, y, position)]))
			}
		}
	}

	return img, nil
}

// SaveSlice encodes img as a JPEG file at filename. A failed close is
// reported like a failed write.
func (v *Viewer) SaveSlice(img image.Image, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("error closing %s: %w", filename, cerr)
		}
	}()

	w := bufio.NewWriter(file)
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("error encoding %s: %w", filename, err)
	}
	return w.Flush()
}

// SaveSliceSequence writes every slice along axis to outputDir as
// slice_<axis>_<position>.jpg, with the axis in lower case.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	dim, err := axisDim(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.volume.Size[dim]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		if err := v.SaveSlice(img, filepath.Join(outputDir, SliceFileName(axis, pos))); err != nil {
			return fmt.Errorf("slice %d along %s: %w", pos, axis, err)
		}
	}
	return nil
}

// SliceFileName is the name SaveSliceSequence gives the slice at pos.
func SliceFileName(axis string, pos int) string {
	return fmt.Sprintf("slice_%s_%03d.jpg", strings.ToLower(axis), pos)
}

// axisDim maps an axis name to its index in Size.
func axisDim(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return 0, nil
	case "y":
		return 1, nil
	case "z":
		return 2, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}
