// Package nifti reads and writes single-file NIfTI-1 images (.nii and
// .nii.gz) as volumes and masks.
package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"doublelogpvalue/internal/models"
)

const (
	headerSize = 348

	// voxOffset is where the samples start in files we write: the header
	// plus a 4 byte empty extension block.
	voxOffset = 352
)

// NIfTI-1 datatype codes.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
	DTInt64   int16 = 1024
	DTUint64  int16 = 1280
)

// xyzt_units value for millimetres.
const unitsMM = 2

var (
	ErrNotNIfTI            = errors.New("not a single-file NIfTI-1 image")
	ErrUnsupportedDatatype = errors.New("unsupported NIfTI datatype")
	ErrUnsupportedDims     = errors.New("unsupported NIfTI dimensions")
	ErrTruncated           = errors.New("NIfTI sample data shorter than header dimensions")
)

var magicSingleFile = [4]byte{'n', '+', '1', 0}

// Header is the on-disk NIfTI-1 header. Field order and sizes follow the
// format exactly; encoding/binary reads it without padding.
type Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// parseHeader decodes raw header bytes, detecting the byte order from
// sizeof_hdr.
func parseHeader(raw []byte) (*Header, binary.ByteOrder, error) {
	if len(raw) < headerSize {
		return nil, nil, fmt.Errorf("%w: header is %d bytes", ErrNotNIfTI, len(raw))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw[:4]) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[:4]) == headerSize:
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("%w: bad sizeof_hdr", ErrNotNIfTI)
	}

	h := &Header{}
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), order, h); err != nil {
		return nil, nil, fmt.Errorf("error decoding header: %w", err)
	}
	if h.Magic != magicSingleFile {
		return nil, nil, fmt.Errorf("%w: magic %q", ErrNotNIfTI, h.Magic[:3])
	}
	return h, order, nil
}

// sampleSize returns the byte size of one sample of the header datatype.
func (h *Header) sampleSize() (int, error) {
	switch h.Datatype {
	case DTUint8, DTInt8:
		return 1, nil
	case DTInt16, DTUint16:
		return 2, nil
	case DTInt32, DTUint32, DTFloat32:
		return 4, nil
	case DTFloat64, DTInt64, DTUint64:
		return 8, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedDatatype, h.Datatype)
}

// geometry derives size, spacing, origin and orientation from the header.
// sform takes precedence over qform; with neither the orientation is the
// identity at the origin.
func (h *Header) geometry() (models.Geometry, error) {
	ndim := int(h.Dim[0])
	if ndim < 1 || ndim > 7 {
		return models.Geometry{}, fmt.Errorf("%w: dim[0] = %d", ErrUnsupportedDims, ndim)
	}
	for i := 4; i <= ndim; i++ {
		if h.Dim[i] > 1 {
			return models.Geometry{}, fmt.Errorf("%w: %d-D image with dim[%d] = %d",
				ErrUnsupportedDims, ndim, i, h.Dim[i])
		}
	}

	g := models.NewGeometry(1, 1, 1)
	for i := 0; i < 3 && i < ndim; i++ {
		g.Size[i] = int(h.Dim[i+1])
		if s := math.Abs(float64(h.Pixdim[i+1])); s > 0 {
			g.Spacing[i] = s
		}
	}
	if err := g.Validate(); err != nil {
		return models.Geometry{}, err
	}

	switch {
	case h.SformCode > 0:
		rows := [3][4]float32{h.SrowX, h.SrowY, h.SrowZ}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				g.Direction[i][j] = float64(rows[i][j]) / g.Spacing[j]
			}
			g.Origin[i] = float64(rows[i][3])
		}
	case h.QformCode > 0:
		qfac := 1.0
		if h.Pixdim[0] < 0 {
			qfac = -1
		}
		g.Direction = quaternToMatrix(float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD), qfac)
		g.Origin = [3]float64{float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ)}
	}
	return g, nil
}

// quaternToMatrix builds the rotation of the qform from its b, c, d
// components. qfac negates the third column for left-handed grids.
func quaternToMatrix(b, c, d, qfac float64) [3][3]float64 {
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// 180 degree rotation; renormalise b, c, d
		n := 1 / math.Sqrt(b*b+c*c+d*d)
		b, c, d = b*n, c*n, d*n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	return [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), qfac * 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, qfac * 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), qfac * (a*a + d*d - c*c - b*b)},
	}
}

// newHeader builds the header of a float64 image with geometry g.
func newHeader(g models.Geometry) *Header {
	h := &Header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  DTFloat64,
		Bitpix:    64,
		VoxOffset: voxOffset,
		SclSlope:  1,
		XYZTUnits: unitsMM,
		SformCode: 1,
		Magic:     magicSingleFile,
	}
	h.Dim[0] = 3
	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		h.Dim[i+1] = int16(g.Size[i])
		h.Pixdim[i+1] = float32(g.Spacing[i])
	}
	for i := 4; i < 8; i++ {
		h.Dim[i] = 1
	}

	rows := [3]*[4]float32{&h.SrowX, &h.SrowY, &h.SrowZ}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rows[i][j] = float32(g.Direction[i][j] * g.Spacing[j])
		}
		rows[i][3] = float32(g.Origin[i])
	}
	copy(h.Descrip[:], "doublelogpvalue")
	return h
}
