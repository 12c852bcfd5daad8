package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"doublelogpvalue/internal/models"
)

// Encode writes v to w as an uncompressed little-endian float64 NIfTI-1
// image.
func Encode(w io.Writer, v *models.Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}
	for axis, n := range v.Size {
		if n > math.MaxInt16 {
			return fmt.Errorf("%w: size[%d] = %d exceeds %d", ErrUnsupportedDims, axis, n, math.MaxInt16)
		}
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, newHeader(v.Geometry)); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	// empty extension block
	if _, err := bw.Write(make([]byte, voxOffset-headerSize)); err != nil {
		return err
	}

	var sample [8]byte
	for _, s := range v.Data {
		binary.LittleEndian.PutUint64(sample[:], math.Float64bits(s))
		if _, err := bw.Write(sample[:]); err != nil {
			return fmt.Errorf("error writing samples: %w", err)
		}
	}
	return bw.Flush()
}

// WriteVolume writes v to path, gzip-compressed when path ends in .gz.
// Data goes to a temporary file in the same directory which replaces path
// only once fully written.
func WriteVolume(path string, v *models.Volume) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = tmp.Chmod(0644); err != nil {
		return fmt.Errorf("error setting output permissions: %w", err)
	}

	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zw := gzip.NewWriter(tmp)
		if err = Encode(zw, v); err != nil {
			return err
		}
		if err = zw.Close(); err != nil {
			return fmt.Errorf("error finishing gzip stream: %w", err)
		}
	} else if err = Encode(tmp, v); err != nil {
		return err
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("error closing output file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error renaming output file: %w", err)
	}
	return nil
}
