package visualization

import (
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"doublelogpvalue/internal/models"
)

// newGradientVolume fills each z slice with the value z - 2.
func newGradientVolume(t *testing.T, width, height, depth int) *models.Volume {
	vol, err := models.NewVolume(models.NewGeometry(width, height, depth))
	if err != nil {
		t.Fatalf("Failed to allocate volume: %v", err)
	}
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Data[vol.Index(x, y, z)] = float64(z) - 2
			}
		}
	}
	return vol
}

// TestWindowIgnoresNonFinite verifies that NaN and infinities do not
// widen the display window
func TestWindowIgnoresNonFinite(t *testing.T) {
	vol := newGradientVolume(t, 4, 4, 5)
	vol.Data[0] = math.NaN()
	vol.Data[1] = math.Inf(1)
	vol.Data[2] = math.Inf(-1)

	low, high := NewViewer(vol).Window()
	if low != -2 || high != 2 {
		t.Errorf("Expected window [-2, 2], got [%v, %v]", low, high)
	}
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(newGradientVolume(t, width, height, depth))

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				width, height, bounds.Dx(), bounds.Dy())
		}

		gray16Img, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}

		expected := uint16(float64(z) / float64(depth-1) * 65535)
		got := gray16Img.Gray16At(width/2, height/2).Y
		if math.Abs(float64(got)-float64(expected)) > 1 {
			t.Errorf("Expected Z slice value ~%d at center, got %d", expected, got)
		}
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}

	imgY, err := viewer.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("x", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestNonFiniteRendersBlack checks the NaN/Inf rendering
func TestNonFiniteRendersBlack(t *testing.T) {
	vol := newGradientVolume(t, 2, 1, 3)
	vol.Data[vol.Index(0, 0, 2)] = math.NaN()
	vol.Data[vol.Index(1, 0, 2)] = math.Inf(1)

	img, err := NewViewer(vol).ExtractSlice("z", 2)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	g := img.(*image.Gray16)
	for x := 0; x < 2; x++ {
		if y := g.Gray16At(x, 0).Y; y != 0 {
			t.Errorf("Expected black at x=%d, got %d", x, y)
		}
	}
}

// TestSaveSliceSequence verifies that a sequence of slices is saved correctly
func TestSaveSliceSequence(t *testing.T) {
	width, height, depth := 6, 5, 4
	viewer := NewViewer(newGradientVolume(t, width, height, depth))
	tmpDir := t.TempDir()

	expected := map[string]int{"x": width, "y": height, "z": depth}
	for axis, count := range expected {
		axisDir := filepath.Join(tmpDir, axis)
		if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
			t.Fatalf("Failed to save %s-axis slices: %v", axis, err)
		}

		files, err := os.ReadDir(axisDir)
		if err != nil {
			t.Fatalf("Failed to read output directory: %v", err)
		}
		if len(files) != count {
			t.Errorf("Expected %d %s-axis files, got %d", count, axis, len(files))
		}

		first := filepath.Join(axisDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, 0))
		if name := SliceFileName(strings.ToUpper(axis), 0); filepath.Base(first) != name {
			t.Errorf("Expected %s, got %s", filepath.Base(first), name)
		}
		if _, err := os.Stat(first); err != nil {
			t.Errorf("Expected file %s to exist: %v", first, err)
		}
	}

	if err := viewer.SaveSliceSequence("w", filepath.Join(tmpDir, "w")); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestSaveSlice verifies that a saved slice decodes back to the same size
// and that write failures are reported
func TestSaveSlice(t *testing.T) {
	viewer := NewViewer(newGradientVolume(t, 7, 3, 4))
	img, err := viewer.ExtractSlice("Y", 1)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}

	path := filepath.Join(t.TempDir(), "slice.jpg")
	if err := viewer.SaveSlice(img, path); err != nil {
		t.Fatalf("Failed to save slice: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open saved slice: %v", err)
	}
	defer f.Close()
	decoded, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("Saved slice is not a JPEG: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 7 || b.Dy() != 4 {
		t.Errorf("Expected decoded slice 7x4, got %dx%d", b.Dx(), b.Dy())
	}

	missing := filepath.Join(t.TempDir(), "missing", "slice.jpg")
	if err := viewer.SaveSlice(img, missing); err == nil {
		t.Error("Expected error for missing directory, got nil")
	}

	if err := viewer.SaveSliceSequence("z", path); err == nil {
		t.Error("Expected error when the output directory is a file, got nil")
	}
}
