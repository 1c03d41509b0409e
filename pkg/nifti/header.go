// Package nifti reads and writes single-file NIfTI-1 volumes held in memory.
//
// Based on the nifti1 header definition,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"fmt"
	"strings"
)

// HeaderSize is the value of sizeof_hdr for NIfTI-1
const HeaderSize = 348

// MinVoxOffset is the smallest data offset of a single-file volume: the header
// plus the 4-byte extender.
const MinVoxOffset = HeaderSize + 4

// Datatype codes, NIFTI_TYPE_*
const (
	DTUnknown    int16 = 0
	DTBinary     int16 = 1
	DTUint8      int16 = 2
	DTInt16      int16 = 4
	DTInt32      int16 = 8
	DTFloat32    int16 = 16
	DTComplex64  int16 = 32
	DTFloat64    int16 = 64
	DTRGB24      int16 = 128
	DTInt8       int16 = 256
	DTUint16     int16 = 512
	DTUint32     int16 = 768
	DTInt64      int16 = 1024
	DTUint64     int16 = 1280
	DTFloat128   int16 = 1536
	DTComplex128 int16 = 1792
	DTComplex256 int16 = 2048
	DTRGBA32     int16 = 2304
)

// Transform codes, NIFTI_XFORM_*
const (
	XformUnknown     int16 = 0
	XformScannerAnat int16 = 1
	XformAlignedAnat int16 = 2
	XformTalairach   int16 = 3
	XformMNI152      int16 = 4
)

var (
	magicSingle = [4]byte{'n', '+', '1', 0}
	magicPair   = [4]byte{'n', 'i', '1', 0}
)

// Header mirrors the on-disk NIfTI-1 header. Its binary size is exactly
// HeaderSize bytes.
//
// Type translation from nifti1 C header to Go:
//
//	C     Go
//	-------------
//	int   int32
//	float float32
//	short int16
//	char  byte
type Header struct {
	SizeOfHdr    int32    // Must be 348
	DataTypeStr  [10]byte // Unused
	DbName       [18]byte // Unused
	Extents      int32    // Unused
	SessionError int16    // Unused
	Regular      byte     // Unused
	DimInfo      byte     // MRI slice ordering

	Dim        [8]int16 // Data array dimensions
	IntentP1   float32  // 1st intent parameter
	IntentP2   float32  // 2nd intent parameter
	IntentP3   float32  // 3rd intent parameter
	IntentCode int16    // NIFTI_INTENT_* code
	Datatype   int16    // Defines data type
	Bitpix     int16    // Number bits/voxel
	SliceStart int16    // First slice index

	Pixdim    [8]float32 // Grid spacings
	VoxOffset float32    // Offset into .nii file
	SclSlope  float32    // Data scaling: slope
	SclInter  float32    // Data scaling: offset
	SliceEnd  int16      // Last slice index
	SliceCode byte       // Slice timing order
	XYZTUnits byte       // Units of pixdim[1..4]

	CalMax        float32 // Max display intensity
	CalMin        float32 // Min display intensity
	SliceDuration float32 // Time for 1 slice
	TOffset       float32 // Time axis shift
	Glmax         int32   // Unused
	Glmin         int32   // Unused

	Descrip [80]byte // Any text you like
	AuxFile [24]byte // Auxiliary filename

	QformCode int16 // NIFTI_XFORM_* code
	SformCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b param
	QuaternC float32 // Quaternion c param
	QuaternD float32 // Quaternion d param
	QoffsetX float32 // Quaternion x shift
	QoffsetY float32 // Quaternion y shift
	QoffsetZ float32 // Quaternion z shift

	SrowX [4]float32 // 1st row affine transform
	SrowY [4]float32 // 2nd row affine transform
	SrowZ [4]float32 // 3rd row affine transform

	IntentName [16]byte // Name or meaning of data
	Magic      [4]byte  // "n+1\0" for single-file volumes
}

// NumDims returns dim[0], the number of used dimensions.
func (h *Header) NumDims() int {
	return int(h.Dim[0])
}

// Dims returns dim[1..dim[0]].
func (h *Header) Dims() []int {
	n := h.NumDims()
	if n < 0 || n > 7 {
		return nil
	}
	dims := make([]int, n)
	for i := range dims {
		dims[i] = int(h.Dim[i+1])
	}
	return dims
}

// SetDims writes dims into dim[0..7], clearing unused trailing entries to 1.
func (h *Header) SetDims(dims []int) {
	h.Dim[0] = int16(len(dims))
	for i := 1; i < len(h.Dim); i++ {
		if i <= len(dims) {
			h.Dim[i] = int16(dims[i-1])
		} else {
			h.Dim[i] = 1
		}
	}
}

// Description returns the descrip field as a string.
func (h *Header) Description() string {
	return cString(h.Descrip[:])
}

// SetDescription stores s in the descrip field, truncated to 79 bytes.
func (h *Header) SetDescription(s string) {
	h.Descrip = [80]byte{}
	copy(h.Descrip[:79], s)
}

// IsSingleFile reports whether the magic marks header and data in one file.
func (h *Header) IsSingleFile() bool {
	return h.Magic == magicSingle
}

// Describe renders a one-line summary of the header
func (h *Header) Describe() string {
	dims := h.Dims()
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("dims=%s pixdim=[%g %g %g] datatype=%s qform=%d sform=%d descrip=%q",
		strings.Join(parts, "x"), h.Pixdim[1], h.Pixdim[2], h.Pixdim[3],
		DatatypeName(h.Datatype), h.QformCode, h.SformCode, h.Description())
}

// DatatypeName returns the NIFTI_TYPE_* name for code.
func DatatypeName(code int16) string {
	switch code {
	case DTUint8:
		return "UINT8"
	case DTInt16:
		return "INT16"
	case DTInt32:
		return "INT32"
	case DTFloat32:
		return "FLOAT32"
	case DTComplex64:
		return "COMPLEX64"
	case DTFloat64:
		return "FLOAT64"
	case DTRGB24:
		return "RGB24"
	case DTInt8:
		return "INT8"
	case DTUint16:
		return "UINT16"
	case DTUint32:
		return "UINT32"
	case DTInt64:
		return "INT64"
	case DTUint64:
		return "UINT64"
	case DTFloat128:
		return "FLOAT128"
	case DTComplex128:
		return "COMPLEX128"
	case DTComplex256:
		return "COMPLEX256"
	case DTRGBA32:
		return "RGBA32"
	case DTBinary:
		return "BINARY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", code)
	}
}

// bytesPerVoxel returns the storage size of the supported scalar datatypes and
// 0 for everything else.
func bytesPerVoxel(code int16) int {
	switch code {
	case DTUint8, DTInt8:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTUint32, DTFloat32:
		return 4
	case DTInt64, DTUint64, DTFloat64:
		return 8
	default:
		return 0
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
