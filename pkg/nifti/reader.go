package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"

	"doublelogpvalue/internal/models"
)

// Image is a decoded NIfTI image: its header, geometry and samples
// converted to float64 with intensity scaling applied.
type Image struct {
	Header   *Header
	Geometry models.Geometry
	Data     []float64
}

// Decode reads a NIfTI-1 image from r. Gzip-compressed streams are
// detected by their magic bytes.
func Decode(r io.Reader) (*Image, error) {
	return decode(r, -1)
}

// decode reads an image from r. When size is not negative it is the byte
// length of an uncompressed r, and headers claiming more sample data than
// that are rejected before any sample is read.
func decode(r io.Reader, size int64) (*Image, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		size = -1
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip stream: %w", err)
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrNotNIfTI, err)
	}
	h, order, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	g, err := h.geometry()
	if err != nil {
		return nil, err
	}
	sampleSize, err := h.sampleSize()
	if err != nil {
		return nil, err
	}

	// skip extensions up to the first sample
	skip := int64(h.VoxOffset) - headerSize
	if skip < 0 {
		return nil, fmt.Errorf("%w: vox_offset %v inside header", ErrNotNIfTI, h.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, br, skip); err != nil {
		return nil, fmt.Errorf("error skipping to vox_offset: %w", err)
	}

	n := g.NumVoxels()
	want := int64(n) * int64(sampleSize)
	if size >= 0 && int64(h.VoxOffset)+want > size {
		return nil, fmt.Errorf("%w: %d samples need %d bytes after vox_offset, file has %d",
			ErrTruncated, n, want, size-int64(h.VoxOffset))
	}

	// the buffer grows with what the stream delivers, not with the header
	buf, err := io.ReadAll(io.LimitReader(br, want))
	if err != nil {
		return nil, fmt.Errorf("error reading %d samples: %w", n, err)
	}
	if int64(len(buf)) < want {
		return nil, fmt.Errorf("%w: read %d of %d sample bytes", ErrTruncated, len(buf), want)
	}

	data := decodeSamples(buf, n, h.Datatype, order)
	if slope, inter := float64(h.SclSlope), float64(h.SclInter); slope != 0 && !(slope == 1 && inter == 0) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return &Image{Header: h, Geometry: g, Data: data}, nil
}

func decodeSamples(buf []byte, n int, datatype int16, order binary.ByteOrder) []float64 {
	data := make([]float64, n)
	for i := range data {
		switch datatype {
		case DTUint8:
			data[i] = float64(buf[i])
		case DTInt8:
			data[i] = float64(int8(buf[i]))
		case DTInt16:
			data[i] = float64(int16(order.Uint16(buf[2*i:])))
		case DTUint16:
			data[i] = float64(order.Uint16(buf[2*i:]))
		case DTInt32:
			data[i] = float64(int32(order.Uint32(buf[4*i:])))
		case DTUint32:
			data[i] = float64(order.Uint32(buf[4*i:]))
		case DTFloat32:
			data[i] = float64(math.Float32frombits(order.Uint32(buf[4*i:])))
		case DTInt64:
			data[i] = float64(int64(order.Uint64(buf[8*i:])))
		case DTUint64:
			data[i] = float64(order.Uint64(buf[8*i:]))
		case DTFloat64:
			data[i] = math.Float64frombits(order.Uint64(buf[8*i:]))
		}
	}
	return data
}

// ReadImage decodes the NIfTI file at path.
func ReadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	img, err := decode(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ReadVolume loads a scalar image as a Volume.
func ReadVolume(path string) (*models.Volume, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	return &models.Volume{Geometry: img.Geometry, Data: img.Data}, nil
}

// ReadMask loads a label image as a MaskVolume. Samples are truncated
// toward zero and their magnitude kept, so any value with |v| >= 1 is
// included; NaN is excluded.
func ReadMask(path string) (*models.MaskVolume, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, err
	}

	mask := &models.MaskVolume{Geometry: img.Geometry, Data: make([]uint32, len(img.Data))}
	for i, v := range img.Data {
		mask.Data[i] = toLabel(v)
	}
	return mask, nil
}

func toLabel(v float64) uint32 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Abs(math.Trunc(v))
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
